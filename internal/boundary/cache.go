package boundary

import (
	"bytes"
	"encoding/binary"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/zeebo/blake3"

	"github.com/corey/dmtree/internal/domain/encoding"
	"github.com/corey/dmtree/internal/domain/objtree"
	"github.com/corey/dmtree/internal/logger"
	"github.com/corey/dmtree/internal/ports"
)

// readCached returns the cached tree for path when its fingerprint still
// matches the sources on disk. A stale or undecodable snapshot is a miss.
// Only a failing store is an error.
func readCached(cfg loadConfig, path string) (*objtree.Tree, *objtree.Context, bool, error) {
	if cfg.cache == nil {
		return nil, nil, false, nil
	}
	snap, err := cfg.cache.LoadSnapshot(path)
	if err != nil {
		return nil, nil, false, &Error{Kind: ErrKindCache, Op: "load", Path: path, Msg: "snapshot lookup failed", Err: err}
	}
	if snap == nil {
		logger.L.Debug("cache miss", "path", path)
		return nil, nil, false, nil
	}

	fp, ok := fingerprint(cfg.read, snap.Files)
	if !ok || !bytes.Equal(fp, snap.Fingerprint) {
		logger.L.Debug("cache stale", "path", path)
		return nil, nil, false, nil
	}
	tree, ctx, err := encoding.DecodeTree(snap.Tree)
	if err != nil {
		logger.L.Warn("dropping undecodable snapshot", "path", path, "err", err)
		if err := cfg.cache.DeleteSnapshot(path); err != nil {
			logger.L.Warn("delete snapshot", "path", path, "err", err)
		}
		return nil, nil, false, nil
	}
	logger.L.Debug("cache hit", "path", path, "age", time.Since(time.Unix(snap.CreatedAt, 0)))
	return tree, ctx, true, nil
}

// storeCached writes a fresh load back to the cache. Failures are logged;
// the load itself already succeeded. Trees with errors are not stored: the
// fix may be a file that does not exist yet, which no fingerprint covers.
func storeCached(cfg loadConfig, path string, tree *objtree.Tree, ctx *objtree.Context) {
	if cfg.cache == nil || ctx.HasErrors() {
		return
	}
	files := ctx.Files()
	fp, ok := fingerprint(cfg.read, files)
	if !ok {
		return
	}
	data, err := encoding.EncodeTree(tree, ctx)
	if err != nil {
		logger.L.Warn("encode snapshot", "path", path, "err", err)
		return
	}
	snap := &ports.Snapshot{Fingerprint: fp, Files: files, Tree: data, CreatedAt: time.Now().Unix()}
	if err := cfg.cache.SaveSnapshot(path, snap); err != nil {
		logger.L.Warn("save snapshot", "path", path, "err", err)
	}
}

// fingerprint hashes the read options and the name and contents of every
// file. It reports false when a file can no longer be read.
func fingerprint(opts ports.ReadOptions, files []string) ([]byte, bool) {
	h := blake3.New()
	field := func(s string) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}

	field("dmtree-snapshot/v" + strconv.Itoa(encoding.FormatVersion))
	field(opts.Encoding)
	keys := make([]string, 0, len(opts.Defines))
	for k := range opts.Defines {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		field(k)
		field(opts.Defines[k])
	}
	for _, dir := range opts.IncludePaths {
		field(dir)
	}

	if len(files) == 0 {
		return nil, false
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, false
		}
		field(f)
		field(string(data))
	}
	return h.Sum(nil), true
}
