// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import "github.com/syndtr/goleveldb/leveldb/util"

// Bucket provides logical bucket for kv store, by prefixing keys.
type Bucket string

type bucketStore struct {
	b   Bucket
	src GetPutter
}

// NewStore creates a bucket store from the source store.
func (b Bucket) NewStore(src GetPutter) GetPutter {
	return &bucketStore{b, src}
}

func (s *bucketStore) key(key []byte) []byte {
	return append(append(make([]byte, 0, len(s.b)+len(key)), s.b...), key...)
}

func (s *bucketStore) Get(key []byte) ([]byte, error) {
	return s.src.Get(s.key(key))
}

func (s *bucketStore) Has(key []byte) (bool, error) {
	return s.src.Has(s.key(key))
}

func (s *bucketStore) IsNotFound(err error) bool {
	return s.src.IsNotFound(err)
}

func (s *bucketStore) Put(key, value []byte) error {
	return s.src.Put(s.key(key), value)
}

func (s *bucketStore) Delete(key []byte) error {
	return s.src.Delete(s.key(key))
}

func (s *bucketStore) NewBatch() Batch {
	return &bucketBatch{s.b, s.src.NewBatch()}
}

// NewIterator iterates keys in the bucket, with the prefix stripped.
func (s *bucketStore) NewIterator(r Range) Iterator {
	r.Start = s.key(r.Start)
	if len(r.Limit) == 0 {
		r.Limit = util.BytesPrefix([]byte(s.b)).Limit
	} else {
		r.Limit = s.key(r.Limit)
	}
	return &bucketIterator{s.b, s.src.NewIterator(r)}
}

type bucketBatch struct {
	b   Bucket
	src Batch
}

func (b *bucketBatch) key(key []byte) []byte {
	return append(append(make([]byte, 0, len(b.b)+len(key)), b.b...), key...)
}

func (b *bucketBatch) Put(key, value []byte) error {
	return b.src.Put(b.key(key), value)
}

func (b *bucketBatch) Delete(key []byte) error {
	return b.src.Delete(b.key(key))
}

func (b *bucketBatch) NewBatch() Batch { return b.src.NewBatch() }
func (b *bucketBatch) Len() int        { return b.src.Len() }
func (b *bucketBatch) Write() error    { return b.src.Write() }

type bucketIterator struct {
	b   Bucket
	src Iterator
}

func (i *bucketIterator) Next() bool    { return i.src.Next() }
func (i *bucketIterator) Release()      { i.src.Release() }
func (i *bucketIterator) Error() error  { return i.src.Error() }
func (i *bucketIterator) Key() []byte   { return i.src.Key()[len(i.b):] }
func (i *bucketIterator) Value() []byte { return i.src.Value() }
