package globaldb

import (
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/globaldb/globaldb/mmap"
)

// The Backend A journal is a minimal append-only, checksummed record log,
// designed along the same lines as the teacher's journal package (append
// record, checksum, fsync-before-ack, replay-on-open) but self-contained: a
// single growing file with no segment rotation, since Backend A's dataset
// is expected to fit comfortably rather than need multi-gigabyte WAL
// management. We didn't wire the teacher's journal package directly because
// it only ships a writer — there is no matching reader to replay records
// against, and guessing at its segment/record wire format well enough to
// read it back correctly isn't something we can verify without running the
// toolchain.
//
// Record format: opcode(1) keyLen+key(varbytes) [valueLen+value(varbytes)]
// then an 8-byte xxhash64 checksum of everything before it.
const (
	journalOpPut    = 1
	journalOpDelete = 2
)

type journalWriter struct {
	f      *os.File
	noSync bool
}

func openJournalWriter(path string, noSync bool) (*journalWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return &journalWriter{f: f, noSync: noSync}, nil
}

func (w *journalWriter) appendPut(key, value []byte) error {
	return w.appendRecord(journalOpPut, key, value)
}

func (w *journalWriter) appendDelete(key []byte) error {
	return w.appendRecord(journalOpDelete, key, nil)
}

func (w *journalWriter) appendRecord(op byte, key, value []byte) error {
	buf := make([]byte, 0, len(key)+len(value)+32)
	buf = appendByte(buf, op)
	buf = appendVarbytes(buf, key)
	if op == journalOpPut {
		buf = appendVarbytes(buf, value)
	}
	sum := xxhash.Sum64(buf)
	buf = appendFixedUint64(buf, sum)
	if _, err := w.f.Write(buf); err != nil {
		return err
	}
	if w.noSync {
		return nil
	}
	return mmap.Fdatasync(w.f, nil)
}

func (w *journalWriter) close() error {
	return w.f.Close()
}

// replayJournal reads every well-formed record from path in order, calling
// onPut/onDelete for each. A trailing partial or corrupt record (the tail of
// a file that was never fsynced past a crash) is dropped and the file is
// truncated back to the end of the last good record, matching the "trims the
// file after the first corrupted record" policy the teacher's journal
// package documents.
func replayJournal(path string, onPut func(key, value []byte), onDelete func(key []byte)) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := mmap.Mmap(f, 0, int(info.Size()), 0)
	if err != nil {
		return err
	}
	defer func() {
		if data != nil {
			mmap.Munmap(data)
		}
	}()

	d := makeByteDecoder(data)
	good := 0
	for d.Remaining() > 0 {
		start := d.Off()
		op, err := d.Byte()
		if err != nil {
			break
		}
		key, err := d.VarBytes()
		if err != nil {
			break
		}
		var value []byte
		if op == journalOpPut {
			value, err = d.VarBytes()
			if err != nil {
				break
			}
		}
		recorded := append([]byte(nil), data[start:d.Off()]...)
		sum, err := d.FixedUint64()
		if err != nil {
			break
		}
		if xxhash.Sum64(recorded) != sum {
			break
		}
		switch op {
		case journalOpPut:
			onPut(append([]byte(nil), key...), append([]byte(nil), value...))
		case journalOpDelete:
			onDelete(append([]byte(nil), key...))
		default:
			return dataErrf(data, start, nil, "unknown journal opcode %d", op)
		}
		good = d.Off()
	}
	if good < len(data) {
		// Trim the dropped tail so records appended later are not stranded
		// behind it on the next replay.
		mmap.Munmap(data)
		data = nil
		return os.Truncate(path, int64(good))
	}
	return nil
}
