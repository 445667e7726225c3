package kstate

import "bytes"

// Prefixed returns a transaction that confines all keys to the given prefix.
// Keys passed in and handed out are relative to the prefix.
func Prefixed(txn Transaction, prefix []byte) Transaction {
	return &prefixedTxn{prefixedReader: prefixedReader{r: txn, prefix: prefix}, txn: txn}
}

// PrefixedReader is the read-only counterpart of Prefixed.
func PrefixedReader(r Reader, prefix []byte) Reader {
	return &prefixedReader{r: r, prefix: prefix}
}

type prefixedReader struct {
	r      Reader
	prefix []byte
}

func (p *prefixedReader) key(k []byte) []byte {
	res := make([]byte, 0, len(p.prefix)+len(k))
	res = append(res, p.prefix...)
	return append(res, k...)
}

func (p *prefixedReader) Get(key []byte) ([]byte, bool, error) {
	return p.r.Get(p.key(key))
}

func (p *prefixedReader) View(key []byte, fn func([]byte) error) (bool, error) {
	return p.r.View(p.key(key), fn)
}

func (p *prefixedReader) Contains(key []byte) (bool, error) {
	return p.r.Contains(p.key(key))
}

func (p *prefixedReader) Scan(prefix []byte, fn func(key, value []byte) error) error {
	return p.r.Scan(p.key(prefix), func(k, v []byte) error {
		return fn(bytes.TrimPrefix(k, p.prefix), v)
	})
}

func (p *prefixedReader) Count() (int, error) {
	return CountScan(p, nil)
}

type prefixedTxn struct {
	prefixedReader
	txn Transaction
}

func (p *prefixedTxn) Put(key, value []byte) error {
	return p.txn.Put(p.key(key), value)
}

func (p *prefixedTxn) Delete(key []byte) error {
	return p.txn.Delete(p.key(key))
}

func (p *prefixedTxn) Commit() error {
	return p.txn.Commit()
}

func (p *prefixedTxn) Discard() {
	p.txn.Discard()
}
