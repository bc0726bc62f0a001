package dwd

import "fmt"

// ConfigError reports unreadable or malformed local configuration data such
// as the station catalog or the archive index. It is fatal for a session.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RetrievalError reports a failed download or an unreadable archive for one
// station.
type RetrievalError struct {
	StationID string
	Archive   string
	Err       error
}

func (e *RetrievalError) Error() string {
	if e.Archive == "" {
		return fmt.Sprintf("retrieve station %s: %v", e.StationID, e.Err)
	}
	return fmt.Sprintf("retrieve station %s (%s): %v", e.StationID, e.Archive, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
