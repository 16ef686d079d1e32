package recording

import (
	"encoding/json"
	"fmt"
	"time"
)

// Manifest is the JSON sidecar stored next to a finalized recording.
type Manifest struct {
	Session   string    `json:"session"`
	Group     string    `json:"group"`
	Port      int       `json:"port"`
	File      string    `json:"file"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Finalized time.Time `json:"finalized"`
	Bytes     int64     `json:"bytes"`
	Datagrams int64     `json:"datagrams"`
}

// ManifestPath returns the sidecar name for a recording.
func ManifestPath(recordingPath string) string {
	return recordingPath + ".json"
}

// NewManifest describes seg for the given capture session.
func NewManifest(session, group string, port int, seg Segment) Manifest {
	return Manifest{
		Session:   session,
		Group:     group,
		Port:      port,
		File:      seg.Path(),
		Start:     seg.Window.Start.UTC(),
		End:       seg.Window.End.UTC(),
		Finalized: seg.FinalizedAt.UTC(),
		Bytes:     seg.Bytes,
		Datagrams: seg.Datagrams,
	}
}

// WriteManifest stores m next to the recording it describes. The write is
// atomic: readers see either no sidecar or a complete one.
func WriteManifest(m Manifest) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	path := ManifestPath(m.File)
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		return "", fmt.Errorf("write manifest %s: %w", path, err)
	}
	return path, nil
}
