// Encoding for snapshot metadata.
//
// The meta value is one version byte followed by a msgpack map. The tree
// payload is stored untouched in its own key, so a lookup that only needs
// the fingerprint never decodes it twice.
//
//	version: uint8 (metaVersion)
//	body:    msgpack {"fingerprint", "files", "created_at"}
package bbolt

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/corey/dmtree/internal/ports"
)

// metaVersion is bumped whenever the meta layout changes; older values are
// then rejected and the snapshot is rebuilt.
const metaVersion = 1

// encodeMeta encodes everything in snap except the tree payload.
func encodeMeta(snap *ports.Snapshot) ([]byte, error) {
	head := *snap
	head.Tree = nil
	body, err := msgpack.Marshal(&head)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 1+len(body))
	buf = append(buf, metaVersion)
	return append(buf, body...), nil
}

// decodeMeta reverses encodeMeta.
func decodeMeta(data []byte) (*ports.Snapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty meta")
	}
	if data[0] != metaVersion {
		return nil, fmt.Errorf("unsupported meta version %d", data[0])
	}
	var snap ports.Snapshot
	if err := msgpack.Unmarshal(data[1:], &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
