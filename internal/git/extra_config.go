package git

// extraConfig specifies transient Git configuration overrides to apply
// to a single command invocation via "-c key=value" arguments.
type extraConfig struct {
	// Editor overrides core.editor for this invocation.
	Editor string

	// MergeConflictStyle overrides merge.conflictstyle for this invocation.
	MergeConflictStyle string
}

// Args returns the "-c key=value" arguments for this configuration.
func (c extraConfig) Args() []string {
	var args []string
	if c.Editor != "" {
		args = append(args, "-c", "core.editor="+c.Editor)
	}
	if c.MergeConflictStyle != "" {
		args = append(args, "-c", "merge.conflictstyle="+c.MergeConflictStyle)
	}
	return args
}

// WithArgs inserts this configuration's "-c" arguments into cmd,
// ahead of the subcommand name so Git applies them globally
// to the invocation.
func (c extraConfig) WithArgs(cmd *gitCmd) *gitCmd {
	args := c.Args()
	if len(args) == 0 {
		return cmd
	}

	rest := cmd.cmd.Args[1:]
	cmd.cmd.Args = append(cmd.cmd.Args[:1:1], append(args, rest...)...)
	return cmd
}
