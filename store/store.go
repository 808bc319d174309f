// Package store persists pipeline records on disk so that benchmarks can be resumed.
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"fmt"

	"github.com/peterbourgon/diskv"
	"github.com/pkg/errors"
	"github.com/yiluheihei/pipeComp/pipeline"
)

// BlockTransform determines how diskv should partition folders.
func BlockTransform(blockSize int) func(string) []string {
	return func(s string) []string {
		var (
			sliceSize = len(s) / blockSize
			pathSlice = make([]string, sliceSize)
		)
		for i := 0; i < sliceSize; i++ {
			from, to := i*blockSize, (i*blockSize)+blockSize
			pathSlice[i] = s[from:to]
		}
		return pathSlice
	}
}

// Key is the storage key of a dataset and combination under a fingerprint of the settings that
// produced the record.
func Key(fingerprint, dataset string, c pipeline.Combination) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(fingerprint+"\x00"+dataset+"\x00"+c.Key())))
}

// RecordToBytes encodes a record to bytes.
func RecordToBytes(r pipeline.Record) ([]byte, error) {
	var buff bytes.Buffer
	enc := gob.NewEncoder(&buff)
	err := enc.Encode(r)
	if err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// DiskStore is a pipeline.Store backed by diskv. Records written under one fingerprint are not
// visible under another.
type DiskStore struct {
	*diskv.Diskv
	Fingerprint string
}

// Get returns the stored record of a dataset and combination, if there is one.
func (d DiskStore) Get(dataset string, c pipeline.Combination) (pipeline.Record, bool, error) {
	k := Key(d.Fingerprint, dataset, c)
	if !d.Has(k) {
		return pipeline.Record{}, false, nil
	}
	b, err := d.Read(k)
	if err != nil {
		return pipeline.Record{}, false, errors.Wrapf(err, "could not read record %s", k)
	}
	var r pipeline.Record
	err = gob.NewDecoder(bytes.NewReader(b)).Decode(&r)
	if err != nil {
		return pipeline.Record{}, false, errors.Wrapf(err, "could not decode record %s", k)
	}
	return r, true, nil
}

// Set stores a record.
func (d DiskStore) Set(r pipeline.Record) error {
	b, err := RecordToBytes(r)
	if err != nil {
		return errors.Wrap(err, "could not encode record")
	}
	return d.Write(Key(d.Fingerprint, r.Dataset, r.Combination), b)
}

// Clear removes every stored record.
func (d DiskStore) Clear() error {
	return d.EraseAll()
}

// NewDiskStore creates a gzip-compressed store rooted at the directory. The fingerprint identifies
// the settings records depend on beyond their combination, e.g. evaluation thresholds.
func NewDiskStore(dir, fingerprint string) DiskStore {
	return DiskStore{
		Diskv: diskv.New(diskv.Options{
			BasePath:     dir,
			Transform:    BlockTransform(8),
			CacheSizeMax: 4096 * 1024,
			Compression:  diskv.NewGzipCompression(),
		}),
		Fingerprint: fingerprint,
	}
}
