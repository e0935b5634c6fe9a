package logx

// discard drops every entry. Component hands it out for a nil logger, so
// services built without one stay silent instead of panicking.
type discard struct{}

var nop Logger = discard{}

// Nop returns the Logger that drops everything.
func Nop() Logger { return nop }

func (discard) Debug(string, ...Field) {}
func (discard) Info(string, ...Field)  {}
func (discard) Warn(string, ...Field)  {}
func (discard) Error(string, ...Field) {}
func (discard) With(...Field) Logger   { return nop }
func (discard) Sync() error            { return nil }
