package markgpu

// MarkOption configures a Mark during creation.
//
// Example:
//
//	mark, err := markgpu.NewMark(globals, channels, markgpu.InferCount,
//	    markgpu.WithLabel("points"),
//	    markgpu.WithShaderBody(pointShader))
type MarkOption func(*markOptions)

// markOptions holds optional configuration for Mark creation.
type markOptions struct {
	label        string
	body         string
	globalLayout string
	context      *ChannelContext
	extras       []ExtraResource
}

// defaultOptions returns the default mark options.
func defaultOptions() markOptions {
	return markOptions{
		label: "mark",
	}
}

// WithLabel sets the debug label prefix of every resource the mark
// allocates.
func WithLabel(label string) MarkOption {
	return func(o *markOptions) {
		if label != "" {
			o.label = label
		}
	}
}

// WithShaderBody appends the mark-specific vertex and fragment code to
// the generated shader. The body calls getScaled_<channel>(i) and reads
// params.<uniform> by their fixed names.
func WithShaderBody(wgsl string) MarkOption {
	return func(o *markOptions) {
		o.body = wgsl
	}
}

// WithGlobalLayout replaces the default @group(0) Globals declaration.
func WithGlobalLayout(wgsl string) MarkOption {
	return func(o *markOptions) {
		o.globalLayout = wgsl
	}
}

// WithChannelContext declares the channels the mark accepts, their fixed
// specs and defaults. Without it every configured channel is accepted
// as given.
func WithChannelContext(ctx ChannelContext) MarkOption {
	return func(o *markOptions) {
		o.context = &ctx
	}
}

// WithExtras declares mark-specific resources bound after the channel
// resources, together with the IDs backing them. Mark.SetExtra replaces
// the IDs later.
func WithExtras(extras ...ExtraResource) MarkOption {
	return func(o *markOptions) {
		o.extras = append(o.extras, extras...)
	}
}
