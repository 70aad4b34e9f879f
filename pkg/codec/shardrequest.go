package codec

import "github.com/veil-project/veil/internal/primitives"

// MaxShardRequestHops bounds request propagation (§6: "hop is a
// decrementing counter to bound propagation"). A request arriving with
// Hop == 0 must not be relayed further.
const MaxShardRequestHops = 8

// ShardRequest is a one-shot pull request for specific missing shard
// indices of an object, per §6.
type ShardRequest struct {
	_          struct{} `cbor:",toarray"`
	ObjectRoot primitives.Hash
	Tag        primitives.Hash
	K          uint16
	N          uint16
	Want       []uint16
	Hop        uint8
}

// Encode serializes r to canonical CBOR.
func (r *ShardRequest) Encode() ([]byte, error) {
	b, err := encMode.Marshal(r)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	return b, nil
}

// DecodeShardRequest parses and validates b into a ShardRequest.
func DecodeShardRequest(b []byte) (*ShardRequest, error) {
	var r ShardRequest
	if err := decMode.Unmarshal(b, &r); err != nil {
		return nil, wrapDecodeErr(err)
	}
	if r.K == 0 || r.N == 0 || r.K > r.N {
		return nil, newErr(FieldOutOfRange, "invalid k/n in ShardRequest")
	}
	if r.Hop > MaxShardRequestHops {
		return nil, newErr(FieldOutOfRange, "hop exceeds propagation bound")
	}
	for _, idx := range r.Want {
		if idx >= r.N {
			return nil, newErr(FieldOutOfRange, "want index out of range")
		}
	}
	return &r, nil
}

// Decremented returns a copy of r with Hop reduced by one, or false if r has
// already reached its propagation bound (Hop == 0) and must not be relayed.
func (r *ShardRequest) Decremented() (ShardRequest, bool) {
	if r.Hop == 0 {
		return ShardRequest{}, false
	}
	next := *r
	next.Hop--
	return next, true
}
