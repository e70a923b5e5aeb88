// Package tree implements the append-only Merkle accumulator that stores the
// deposit commitments. Nodes are kept sparse in the database, absent nodes
// default to a per-level zero constant, and leaves are appended strictly
// sequentially. The database layout uses the following prefixes:
//
//   - n/ → tree nodes, keyed by level and index
//   - m/ → tree metadata (depth, number of leaves)
package tree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/vocdoni/zkpool/crypto/hash/mimc"
	"github.com/vocdoni/zkpool/types"
	"github.com/vocdoni/zkpool/util"
)

var (
	// ErrTreeFull is returned when inserting into a tree that already holds
	// its full capacity of leaves.
	ErrTreeFull = errors.New("tree is full")
	// ErrInvalidIndex is returned when an index falls outside the tree
	// capacity, or an insert targets anything but the next free index.
	ErrInvalidIndex = errors.New("invalid index")
	// ErrIndexOccupied is returned when an insert targets a slot that
	// already holds a leaf.
	ErrIndexOccupied = errors.New("index already occupied")
	// ErrIndexEmpty is returned when an in-place update targets a slot that
	// was never inserted.
	ErrIndexEmpty = errors.New("index not yet occupied")
	// ErrInvalidLeaf is returned when a leaf is nil, negative or not reduced
	// into the field.
	ErrInvalidLeaf = errors.New("leaf is not a canonical field element")
)

var (
	nodePrefix = []byte("n/")
	metaPrefix = []byte("m/")

	leafCountKey = []byte("count")
	depthKey     = []byte("depth")
)

// HashFunc combines two field elements into their parent node.
type HashFunc func(left, right *big.Int) (*big.Int, error)

// defaultHash matches the in-circuit hasher, so paths produced here verify
// inside the circuits.
var defaultHash HashFunc = mimc.HashPair

// Config contains the parameters to create or open a Tree.
type Config struct {
	// Database is the storage backend, dedicated to this tree (callers
	// should hand in a prefixed database when sharing one).
	Database db.Database
	// Depth is the number of levels between the leaf layer and the root.
	// Capacity is 2^Depth leaves.
	Depth int
	// Hash combines two nodes into their parent. Defaults to MiMC over the
	// BN254 scalar field, which matches the in-circuit hasher.
	Hash HashFunc
}

// Tree is a fixed-depth, append-only Merkle accumulator. Leaves are assigned
// strictly sequential indices, nodes equal to the zero constants are never
// stored, and the root is cached between mutations. Safe for concurrent use.
type Tree struct {
	mu     sync.RWMutex
	db     db.Database
	depth  int
	hash   HashFunc
	zeros  []*big.Int
	root   *big.Int
	leaves uint64
}

// New creates or opens a Tree on the given database. When the database
// already holds a tree, its depth must match the configured one.
func New(cfg Config) (*Tree, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Depth < 1 || cfg.Depth > types.MaxTreeDepth {
		return nil, fmt.Errorf("depth must be in [1, %d], got %d", types.MaxTreeDepth, cfg.Depth)
	}
	hash := cfg.Hash
	if hash == nil {
		hash = defaultHash
	}
	zeros, err := zeroNodes(cfg.Depth, hash)
	if err != nil {
		return nil, fmt.Errorf("compute zero nodes: %w", err)
	}
	t := &Tree{
		db:    cfg.Database,
		depth: cfg.Depth,
		hash:  hash,
		zeros: zeros,
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// load restores the cached leaf count and root from the database, checking
// that the stored depth matches the configured one.
func (t *Tree) load() error {
	meta := prefixeddb.NewPrefixedReader(t.db, metaPrefix)
	switch data, err := meta.Get(depthKey); {
	case err == nil:
		if stored := int(data[0]); stored != t.depth {
			return fmt.Errorf("tree was created with depth %d, opened with %d", stored, t.depth)
		}
	case errors.Is(err, db.ErrKeyNotFound):
		wTx := prefixeddb.NewPrefixedWriteTx(t.db.WriteTx(), metaPrefix)
		if err := wTx.Set(depthKey, []byte{byte(t.depth)}); err != nil {
			wTx.Discard()
			return err
		}
		if err := wTx.Commit(); err != nil {
			return err
		}
	default:
		return err
	}
	switch data, err := meta.Get(leafCountKey); {
	case err == nil:
		t.leaves = binary.BigEndian.Uint64(data)
	case errors.Is(err, db.ErrKeyNotFound):
		t.leaves = 0
	default:
		return err
	}
	if t.leaves == 0 {
		t.root = new(big.Int).Set(t.zeros[t.depth])
		return nil
	}
	nodes := prefixeddb.NewPrefixedReader(t.db, nodePrefix)
	data, err := nodes.Get(nodeKey(t.depth, 0))
	if err != nil {
		return fmt.Errorf("load root: %w", err)
	}
	t.root = new(big.Int).SetBytes(data)
	return nil
}

// Depth returns the number of levels of the tree.
func (t *Tree) Depth() int { return t.depth }

// Capacity returns the maximum number of leaves the tree can hold.
func (t *Tree) Capacity() uint64 { return uint64(1) << t.depth }

// LeafCount returns the number of leaves inserted so far.
func (t *Tree) LeafCount() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.leaves
}

// Root returns the current root. For a tree with no leaves it equals the
// precomputed empty root.
func (t *Tree) Root() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.root)
}

// ZeroNode returns the zero constant of the given level, from 0 (empty leaf)
// up to the tree depth (empty root).
func (t *Tree) ZeroNode(level int) (*big.Int, error) {
	if level < 0 || level > t.depth {
		return nil, fmt.Errorf("level must be in [0, %d], got %d", t.depth, level)
	}
	return new(big.Int).Set(t.zeros[level]), nil
}

// Insert appends a leaf at the next free index and returns the assigned
// index. It fails with ErrTreeFull when the tree is at capacity.
func (t *Tree) Insert(leaf *big.Int) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.leaves == t.capacity() {
		return 0, ErrTreeFull
	}
	index := t.leaves
	if err := t.update(index, leaf, true); err != nil {
		return 0, err
	}
	return index, nil
}

// Update writes a leaf at the given index. With isInsert it must target
// exactly the next free index; without it, it replaces a previously inserted
// leaf in place. The two modes are mutually exclusive on purpose, to catch
// callers confusing appends with overwrites.
func (t *Tree) Update(index uint64, leaf *big.Int, isInsert bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.update(index, leaf, isInsert)
}

func (t *Tree) capacity() uint64 { return uint64(1) << t.depth }

func (t *Tree) update(index uint64, leaf *big.Int, isInsert bool) error {
	if leaf == nil || leaf.Sign() < 0 || util.BigToFF(leaf).Cmp(leaf) != 0 {
		return ErrInvalidLeaf
	}
	if index >= t.capacity() {
		return fmt.Errorf("%w: %d out of [0, %d)", ErrInvalidIndex, index, t.capacity())
	}
	if isInsert {
		if index < t.leaves {
			return fmt.Errorf("%w: %d", ErrIndexOccupied, index)
		}
		if index > t.leaves {
			return fmt.Errorf("%w: insert at %d would leave a gap, next free index is %d",
				ErrInvalidIndex, index, t.leaves)
		}
	} else if index >= t.leaves {
		return fmt.Errorf("%w: %d", ErrIndexEmpty, index)
	}

	wTx := t.db.WriteTx()
	defer wTx.Discard()
	nodes := prefixeddb.NewPrefixedWriteTx(wTx, nodePrefix)

	cur := new(big.Int).Set(leaf)
	idx := index
	if err := nodes.Set(nodeKey(0, idx), nodeValue(cur)); err != nil {
		return err
	}
	for level := 0; level < t.depth; level++ {
		sibling, err := t.node(nodes, level, idx^1)
		if err != nil {
			return err
		}
		if idx&1 == 0 {
			cur, err = t.hash(cur, sibling)
		} else {
			cur, err = t.hash(sibling, cur)
		}
		if err != nil {
			return fmt.Errorf("hash nodes at level %d: %w", level, err)
		}
		idx >>= 1
		if err := nodes.Set(nodeKey(level+1, idx), nodeValue(cur)); err != nil {
			return err
		}
	}

	leaves := t.leaves
	if isInsert {
		leaves++
		var count [8]byte
		binary.BigEndian.PutUint64(count[:], leaves)
		meta := prefixeddb.NewPrefixedWriteTx(wTx, metaPrefix)
		if err := meta.Set(leafCountKey, count[:]); err != nil {
			return err
		}
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	t.root = cur
	t.leaves = leaves
	return nil
}

// node reads the node at (level, index) from the given reader, falling back
// to the level zero constant when absent.
func (t *Tree) node(rd db.Reader, level int, index uint64) (*big.Int, error) {
	data, err := rd.Get(nodeKey(level, index))
	if errors.Is(err, db.ErrKeyNotFound) {
		return new(big.Int).Set(t.zeros[level]), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

// zeroNodes precomputes the per-level zero constants: level 0 is the empty
// leaf value, each level above hashes the previous constant with itself.
func zeroNodes(depth int, hash HashFunc) ([]*big.Int, error) {
	zeros := make([]*big.Int, depth+1)
	zeros[0] = big.NewInt(0)
	for level := 0; level < depth; level++ {
		parent, err := hash(zeros[level], zeros[level])
		if err != nil {
			return nil, err
		}
		zeros[level+1] = parent
	}
	return zeros, nil
}

// EmptyRoot returns the root of a tree of the given depth with no leaves.
// A nil hash defaults to MiMC, matching New.
func EmptyRoot(depth int, hash HashFunc) (*big.Int, error) {
	if depth < 1 || depth > types.MaxTreeDepth {
		return nil, fmt.Errorf("depth must be in [1, %d], got %d", types.MaxTreeDepth, depth)
	}
	if hash == nil {
		hash = defaultHash
	}
	zeros, err := zeroNodes(depth, hash)
	if err != nil {
		return nil, err
	}
	return zeros[depth], nil
}

// nodeKey builds the database key of the node at (level, index).
func nodeKey(level int, index uint64) []byte {
	key := make([]byte, 9)
	key[0] = byte(level)
	binary.BigEndian.PutUint64(key[1:], index)
	return key
}

// nodeValue serializes a node as its 32-byte big-endian representation.
func nodeValue(v *big.Int) []byte {
	value := make([]byte, types.FieldElemLen)
	v.FillBytes(value)
	return value
}
