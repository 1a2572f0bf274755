package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Manifest summarizes a table set so deployments can tell which curated
// answers they are serving.
type Manifest struct {
	SchemaVersion     int               `json:"schema_version"`
	KeywordCount      int               `json:"keyword_count"`
	FallbackCount     int               `json:"fallback_count"`
	InteractionCount  int               `json:"interaction_count"`
	TopicCount        int               `json:"topic_count"`
	FileSHA256        map[string]string `json:"file_sha256"`
	TablesSHA256      string            `json:"tables_sha256"`
	DetectionOrderIDs []string          `json:"detection_order_ids"`
}

const SchemaVersion = 1

// LoadDir loads tables from an on-disk directory, used to override the
// embedded set without rebuilding.
func LoadDir(dir string) (*Tables, error) {
	root := strings.TrimSpace(dir)
	if root == "" {
		return nil, fmt.Errorf("missing knowledge dir")
	}
	return LoadFS(os.DirFS(root))
}

// BuildManifest validates fsys and returns its manifest.
func BuildManifest(fsys fs.FS) (Manifest, error) {
	if fsys == nil {
		fsys = embeddedFS()
	}
	tables, err := LoadFS(fsys)
	if err != nil {
		return Manifest{}, err
	}

	files := []string{KeywordsFile, FallbacksFile, InteractionsFile, TopicsFile}
	hashes := make(map[string]string, len(files))
	combined := sha256.New()
	for _, name := range files {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return Manifest{}, err
		}
		hashes[name] = sha256Hex(raw)
		combined.Write([]byte(name))
		combined.Write(raw)
	}

	order := make([]string, 0, len(tables.Topics)+len(tables.Interactions)+len(tables.Keywords))
	for _, tp := range tables.Topics {
		order = append(order, "topic:"+tp.ID)
	}
	for _, it := range tables.Interactions {
		order = append(order, "interaction:"+it.ID)
	}
	for _, kw := range tables.Keywords {
		order = append(order, "keyword:"+foldKey(kw.Name))
	}

	return Manifest{
		SchemaVersion:     SchemaVersion,
		KeywordCount:      len(tables.Keywords),
		FallbackCount:     len(tables.Fallbacks),
		InteractionCount:  len(tables.Interactions),
		TopicCount:        len(tables.Topics),
		FileSHA256:        hashes,
		TablesSHA256:      hex.EncodeToString(combined.Sum(nil)),
		DetectionOrderIDs: order,
	}, nil
}

// EmbeddedManifest is BuildManifest over the embedded tables.
func EmbeddedManifest() (Manifest, error) {
	return BuildManifest(embeddedFS())
}

func (m Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func sha256Hex(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}
