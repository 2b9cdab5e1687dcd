// Package backup builds and parses portable campaign snapshots. The
// document format is versioned JSON, independent of the live sync
// protocol, so exports survive protocol changes.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joelmale/nexus/internal/game"
	"github.com/joelmale/nexus/internal/protocol"
)

// Version is written into every new document. Major bumps mean an
// incompatible layout; Parse rejects documents from another major.
const Version = "1.0.0"

var ErrNotJSON = errors.New("backup file is not valid JSON")
var ErrMissingVersion = errors.New("backup file is missing the version field")
var ErrMissingScenes = errors.New("backup file is missing the scenes field")
var ErrIncompatibleVersion = errors.New("backup file version is not supported")

// Campaign is the metadata block of a document.
type Campaign struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Document is a self-describing campaign snapshot.
type Document struct {
	Version       string           `json:"version"`
	Scenes        []protocol.Scene `json:"scenes"`
	ActiveSceneID *string          `json:"activeSceneId"`
	Campaign      Campaign         `json:"campaign"`
}

// Build snapshots the given state into a document. The scene list is
// deep-copied so later mutations of live state do not leak into an
// export in progress.
func Build(state protocol.GameState, campaign Campaign) Document {
	cloned := game.CloneState(state)
	doc := Document{
		Version:  Version,
		Scenes:   cloned.Scenes,
		Campaign: campaign,
	}
	if state.ActiveSceneID != "" {
		id := state.ActiveSceneID
		doc.ActiveSceneID = &id
	}
	return doc
}

// Encode writes the document as indented JSON, the shape users see when
// they open an exported file.
func (d Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

// Parse reads and validates a document. It checks JSON shape, required
// top-level fields, and version compatibility before returning, so a
// malformed file can never be partially applied.
func Parse(r io.Reader) (Document, error) {
	var raw struct {
		Version       *string           `json:"version"`
		Scenes        *[]protocol.Scene `json:"scenes"`
		ActiveSceneID *string           `json:"activeSceneId"`
		Campaign      Campaign          `json:"campaign"`
	}

	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	if raw.Version == nil || *raw.Version == "" {
		return Document{}, ErrMissingVersion
	}
	if raw.Scenes == nil {
		return Document{}, ErrMissingScenes
	}
	if err := checkVersion(*raw.Version); err != nil {
		return Document{}, err
	}

	doc := Document{
		Version:       *raw.Version,
		Scenes:        *raw.Scenes,
		ActiveSceneID: raw.ActiveSceneID,
		Campaign:      raw.Campaign,
	}

	// An active scene pointing outside the scene list would leave the
	// importer with a dangling reference; drop it here.
	if doc.ActiveSceneID != nil {
		found := false
		for _, sc := range doc.Scenes {
			if sc.ID == *doc.ActiveSceneID {
				found = true
				break
			}
		}
		if !found {
			doc.ActiveSceneID = nil
		}
	}

	return doc, nil
}

func checkVersion(v string) error {
	major, _, _ := strings.Cut(v, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrIncompatibleVersion, v)
	}
	want, _, _ := strings.Cut(Version, ".")
	if strconv.Itoa(n) != want {
		return fmt.Errorf("%w: %q (this build reads %s)", ErrIncompatibleVersion, v, Version)
	}
	return nil
}

// Restore converts a parsed document back into a state patch the caller
// can apply wholesale after user confirmation. Import replaces the
// current scene list; it never merges.
func Restore(doc Document) protocol.StatePatch {
	scenes := doc.Scenes
	if scenes == nil {
		scenes = []protocol.Scene{}
	}
	active := ""
	if doc.ActiveSceneID != nil {
		active = *doc.ActiveSceneID
	}
	return protocol.StatePatch{
		Scenes:        &scenes,
		ActiveSceneID: &active,
	}
}
