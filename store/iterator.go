package store

// defaultIterable is the slice of Store a default forward/backward
// iterator needs: NumDataRows and GetValueAppend, per spec §4.3.
type defaultIterable interface {
	NumDataRows() int64
	GetValueAppend(id SubID, out []byte, ctx Context) ([]byte, error)
}

// CreateDefaultStoreIterForward returns an iterator that scans
// [0, NumDataRows) in ascending order by repeatedly calling GetValueAppend.
// Stores with no cheaper native iteration strategy can return this from
// their own CreateStoreIterForward.
func CreateDefaultStoreIterForward(s defaultIterable, ctx Context) Iterator {
	return &defaultIterator{s: s, ctx: ctx, cur: -1, n: s.NumDataRows(), forward: true}
}

// CreateDefaultStoreIterBackward is the descending counterpart, starting at
// NumDataRows-1.
func CreateDefaultStoreIterBackward(s defaultIterable, ctx Context) Iterator {
	n := s.NumDataRows()
	return &defaultIterator{s: s, ctx: ctx, cur: n, n: n, forward: false}
}

type defaultIterator struct {
	s       defaultIterable
	ctx     Context
	cur     SubID
	n       int64
	forward bool
}

func (it *defaultIterator) Next() (SubID, []byte, bool) {
	if it.forward {
		it.cur++
		if int64(it.cur) >= it.n {
			it.cur = SubID(it.n)
			return 0, nil, false
		}
	} else {
		it.cur--
		if it.cur < 0 {
			it.cur = -1
			return 0, nil, false
		}
	}
	row, err := it.s.GetValueAppend(it.cur, nil, it.ctx)
	if err != nil {
		return 0, nil, false
	}
	return it.cur, row, true
}

// SeekExact positions the cursor at id and returns its row. Per the
// corrected contract (spec §9 Open Question), this actually seeks to id -
// it does not jump to the end-of-store sentinel the source's buggy
// implementation did.
func (it *defaultIterator) SeekExact(id SubID) ([]byte, bool) {
	if id < 0 || int64(id) >= it.n {
		if it.forward {
			it.cur = SubID(it.n)
		} else {
			it.cur = -1
		}
		return nil, false
	}
	row, err := it.s.GetValueAppend(id, nil, it.ctx)
	if err != nil {
		return nil, false
	}
	it.cur = id
	return row, true
}

func (it *defaultIterator) Close() {}
