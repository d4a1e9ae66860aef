package pipeline

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/backmassage/meshbatch/internal/logging"
	"github.com/backmassage/meshbatch/internal/pool"
)

// ArchiveExt is appended to archived batch logs.
const ArchiveExt = ".zst"

// handleBatchLogs applies options.saveBatchLogs and options.archiveBatchLogs.
// Logs of failed batches are always kept since they are the only record of
// what went wrong.
func (o *Orchestrator) handleBatchLogs(log *logging.Logger, rep *pool.Report, st *StageResult) {
	var kept []string
	removed := 0
	for _, u := range rep.Units {
		for _, path := range []string{u.Invocation.StdoutPath, u.Invocation.StderrPath} {
			if path == "" {
				continue
			}
			if u.OK() && !o.cfg.Options.SaveBatchLogs {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					st.warn("remove log %s: %v", path, err)
				} else if err == nil {
					removed++
				}
				continue
			}
			kept = append(kept, path)
		}
	}
	if removed > 0 {
		log.Debug("Removed %d log file(s) of successful batches", removed)
	}

	if !o.cfg.Options.ArchiveBatchLogs {
		return
	}
	archived := 0
	for _, path := range kept {
		if err := ArchiveLog(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			st.warn("archive log %s: %v", path, err)
			log.Warn("Cannot archive %s: %v", path, err)
			continue
		}
		archived++
	}
	log.Debug("Archived %d log file(s)", archived)
}

// ArchiveLog compresses path to path+".zst" and removes the original.
func ArchiveLog(path string) (err error) {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	dst := path + ArchiveExt
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(dst)
		}
	}()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	if _, err = io.Copy(enc, in); err != nil {
		enc.Close()
		return fmt.Errorf("compress %s: %w", path, err)
	}
	if err = enc.Close(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(path)
}

// ReadArchivedLog decompresses a log written by ArchiveLog.
func ReadArchivedLog(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}
