/*
Package config loads eventgate host settings from YAML, JSON or TOML files.

# Values

Values wraps a map[string]any and provides typed accessors that return a
default when a key is missing or has the wrong type:

	v, err := config.FromFile("eventgate.toml")
	limit := v.Int("pending_limit", 0)
	path := v.Section("store").String("path", "owners.db")

Numbers decode differently per format (int from YAML, int64 from TOML,
float64 from JSON); Int and Duration accept all three.

# Settings

Settings is the typed view used by hosts:

	s, err := config.Load("eventgate.yaml")
	if err != nil {
	    return err
	}
	logger := s.NewLogger(os.Stderr)
	l := loop.New(s.LoopOptions(logger)...)
	st, err := s.OpenStore()
	reg, err := eventgate.NewRegistry(l, s.RegistryOptions(logger, st)...)

Missing keys keep the values from Default.
*/
package config
