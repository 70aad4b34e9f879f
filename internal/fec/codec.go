package fec

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"

	"github.com/klauspost/reedsolomon"

	"github.com/veil-project/veil/internal/primitives"
)

// ErrInsufficientShards is returned when fewer than k distinct shards are
// available to decode (§7's FEC.InsufficientShards).
var ErrInsufficientShards = errors.New("fec: insufficient shards to decode")

// blockPermutation derives hardened mode's deterministic, keyless reordering
// of the k source blocks from object_root. Any two implementations computing
// this over the same object_root and k produce the same permutation. Only
// the block order changes: block bytes reach Reed-Solomon unmodified, so
// each of the first k shards of a hardened encoding is still a verbatim
// source block, at a permuted index (possibly its own).
func blockPermutation(root primitives.Hash, k int) []int {
	seed1 := binary.LittleEndian.Uint64(root[0:8])
	seed2 := binary.LittleEndian.Uint64(root[8:16])
	rng := rand.New(rand.NewPCG(seed1, seed2))
	return rng.Perm(k)
}

// padBlocks splits data into k equal blocks of blockSize bytes, zero-padding
// the final block as needed. The caller (pkg/node publish pipeline) has
// already padded the Object to the profile's exact payload capacity, so in
// practice len(data) == k*blockSize and no zero padding is added here — the
// defensive path exists so fec remains correct as a standalone unit.
func padBlocks(data []byte, k, blockSize int) [][]byte {
	blocks := make([][]byte, k)
	for i := 0; i < k; i++ {
		start := i * blockSize
		end := start + blockSize
		b := make([]byte, blockSize)
		if start < len(data) {
			cut := end
			if cut > len(data) {
				cut = len(data)
			}
			copy(b, data[start:cut])
		}
		blocks[i] = b
	}
	return blocks
}

// Encode splits data into p.K data blocks of p.ShardPayloadSize(headerOverhead)
// bytes and produces p.N total shards. When hardened is true, the k data
// blocks are permuted per blockPermutation(root, k) before Reed-Solomon
// parity is computed, per §4.4's default mode; when false (systematic,
// namespace-1 opt-in), blocks are encoded in source order and the first k
// output shards are the plaintext source blocks.
func Encode(p Profile, hardened bool, root primitives.Hash, data []byte, headerOverhead int) ([][]byte, error) {
	blockSize := p.ShardPayloadSize(headerOverhead)
	blocks := padBlocks(data, p.K, blockSize)

	ordered := make([][]byte, p.N)
	if hardened {
		perm := blockPermutation(root, p.K)
		for i, b := range blocks {
			ordered[perm[i]] = b
		}
	} else {
		copy(ordered, blocks)
	}
	for i := p.K; i < p.N; i++ {
		ordered[i] = make([]byte, blockSize)
	}

	enc, err := reedsolomon.New(p.K, p.N-p.K)
	if err != nil {
		return nil, err
	}
	if err := enc.Encode(ordered); err != nil {
		return nil, err
	}
	return ordered, nil
}

// Decode reconstructs the original k data blocks from any k-or-more distinct
// indices of shards (index -> payload), then — for hardened encodings —
// inverts the permutation to restore source order, and concatenates the
// blocks back into the original padded byte stream.
func Decode(p Profile, hardened bool, root primitives.Hash, shards map[int][]byte, headerOverhead int) ([]byte, error) {
	if len(shards) < p.K {
		return nil, ErrInsufficientShards
	}

	blockSize := p.ShardPayloadSize(headerOverhead)
	slots := make([][]byte, p.N)
	for idx, payload := range shards {
		if idx < 0 || idx >= p.N {
			continue
		}
		slots[idx] = payload
	}

	enc, err := reedsolomon.New(p.K, p.N-p.K)
	if err != nil {
		return nil, err
	}
	if err := enc.ReconstructData(slots); err != nil {
		return nil, err
	}

	dataSlots := slots[:p.K]
	ordered := make([][]byte, p.K)
	if hardened {
		perm := blockPermutation(root, p.K)
		for i := range ordered {
			ordered[i] = dataSlots[perm[i]]
		}
	} else {
		copy(ordered, dataSlots)
	}

	out := make([]byte, 0, p.K*blockSize)
	for _, b := range ordered {
		out = append(out, b...)
	}
	return out, nil
}
