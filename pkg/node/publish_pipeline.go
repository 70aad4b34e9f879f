package node

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/veil-project/veil/internal/fec"
	"github.com/veil-project/veil/internal/primitives"
	"github.com/veil-project/veil/internal/tagderive"
	"github.com/veil-project/veil/pkg/cache"
	"github.com/veil-project/veil/pkg/codec"
	"github.com/veil-project/veil/pkg/policy"
	"github.com/veil-project/veil/pkg/veilcrypto"
)

// ErrPayloadTooLarge is returned when a single Publish call's payload would
// not fit within TARGET_BATCH_SIZE. Spec §4.8's own accumulate-until-batch-
// trigger batching of many small application payloads into one Object is a
// publish-side queueing concern layered above this method, not performed
// here; see DESIGN.md.
var ErrPayloadTooLarge = errors.New("node: payload exceeds target batch size")

// PublishOptions configures one Publish call.
type PublishOptions struct {
	Signed       bool
	AckRequested bool
}

// Publish seals payload into an ObjectV1 under (tag, namespace, key),
// FEC-encodes it, inserts every shard into the cache, registers a publish
// queue entry, and schedules the initial multi-lane fanout (§4.8).
func (n *Node) Publish(tag primitives.Hash, namespace uint16, key [32]byte, payload []byte, opts PublishOptions) (primitives.Hash, error) {
	if len(payload) > n.cfg.TargetBatchSize {
		return primitives.Hash{}, ErrPayloadTooLarge
	}

	epoch := tagderive.Epoch(time.Now(), n.cfg.EpochSeconds)
	obj, err := n.sealObject(namespace, epoch, tag, payload, key, opts.Signed, opts.AckRequested)
	if err != nil {
		return primitives.Hash{}, err
	}

	unpadded, err := obj.Encode()
	if err != nil {
		return primitives.Hash{}, err
	}
	profile, err := fec.SelectProfileJittered(len(unpadded), n.cfg.HeaderOverhead(), n.cfg.BucketJitter)
	if err != nil {
		return primitives.Hash{}, err
	}

	root, err := n.publishObject(obj, profile)
	if err != nil {
		return primitives.Hash{}, err
	}
	return root, nil
}

func (n *Node) sealObject(namespace uint16, epoch uint32, tag primitives.Hash, plaintext []byte, key [32]byte, signed, ackRequested bool) (*codec.ObjectV1, error) {
	nonce, err := veilcrypto.NewNonce()
	if err != nil {
		return nil, err
	}
	ad := veilcrypto.AdditionalData(tag, namespace, epoch)
	ciphertext, err := veilcrypto.Seal(key[:], nonce, plaintext, ad)
	if err != nil {
		return nil, err
	}

	var flags uint16
	if ackRequested {
		flags |= codec.FlagAckRequested
	}
	canSign := signed && n.identity != nil
	if canSign {
		flags |= codec.FlagSigned
	}

	obj := &codec.ObjectV1{
		Version:    codec.ObjectVersion1,
		Namespace:  namespace,
		Epoch:      epoch,
		Flags:      flags,
		Tag:        tag,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}
	obj.ObjectRoot = codec.ComputeObjectRoot(obj.Version, obj.Namespace, obj.Epoch, obj.Tag, obj.Ciphertext)

	if canSign {
		pub := n.identity.Public().(ed25519.PublicKey)
		obj.SenderPubKey = append([]byte(nil), pub...)
		msg := veilcrypto.SigningMessage(obj.HeaderBytes(), obj.Ciphertext)
		obj.Signature = veilcrypto.SignEd25519(n.identity, msg)
	}
	return obj, nil
}

// padObjectToProfile grows obj.Padding until its canonical encoding is
// exactly profile's payload capacity, converging in at most a few
// iterations since CBOR length-prefix width only changes at byte-string
// length thresholds (23/255/65535 bytes).
func padObjectToProfile(obj *codec.ObjectV1, target int) ([]byte, error) {
	obj.Padding = nil
	for i := 0; i < 4; i++ {
		b, err := obj.Encode()
		if err != nil {
			return nil, err
		}
		if len(b) == target {
			return b, nil
		}
		// An overshoot (the padding's length prefix grew wider) shrinks the
		// padding on the next pass; only an unpadded overshoot is fatal.
		needed := len(obj.Padding) + (target - len(b))
		if needed < 0 {
			return nil, newPaddingError()
		}
		obj.Padding = make([]byte, needed)
	}
	return nil, newPaddingError()
}

func newPaddingError() error {
	return errors.New("node: object does not converge to its FEC profile's bucket size")
}

func (n *Node) publishObject(obj *codec.ObjectV1, profile fec.Profile) (primitives.Hash, error) {
	target := profile.PayloadCapacity(n.cfg.HeaderOverhead())
	encoded, err := padObjectToProfile(obj, target)
	if err != nil {
		return primitives.Hash{}, err
	}

	hardened := !n.cfg.SystematicPublicNamespaces[obj.Namespace]
	shardPayloads, err := fec.Encode(profile, hardened, obj.ObjectRoot, encoded, n.cfg.HeaderOverhead())
	if err != nil {
		return primitives.Hash{}, err
	}

	now := time.Now()
	var allShards [][]byte
	for i, payload := range shardPayloads {
		sv := &codec.ShardV1{
			Version: codec.ShardVersion1, Namespace: obj.Namespace, Epoch: obj.Epoch,
			Tag: obj.Tag, ObjectRoot: obj.ObjectRoot, K: uint16(profile.K),
			Index: uint16(i), Payload: payload,
		}
		sv.SetN(uint16(profile.N), hardened)
		wireBytes, err := sv.Encode()
		if err != nil {
			return primitives.Hash{}, err
		}
		id := primitives.H(wireBytes)
		n.cache.Put(cache.Entry{
			ShardID: id, ObjectRoot: obj.ObjectRoot, Index: sv.Index,
			Payload: wireBytes, Expiry: now.Add(n.cfg.CacheTTL), LastSeen: now,
			ReplicaScore: 1, Tier: policy.Trusted,
		})
		allShards = append(allShards, wireBytes)
	}

	entry := NewPublishEntry(obj.ObjectRoot, n.cfg.AckDeadline, n.cfg.AckDeadlineCap, n.cfg.MaxAttempts)
	n.queue.Add(entry)
	if err := entry.Publish(now); err != nil {
		return primitives.Hash{}, err
	}

	if len(n.lanes) > 0 {
		plan := PlanFanout(n.lanes, allShards, profile.K, n.cfg.FastLanePeers, n.cfg.FallbackLanePeers, n.cfg.MinimumHealthyLaneScore)
		sendAll(plan.FastLane, plan.FastPeers, plan.FastShards)
		sendAll(plan.FallbackLane, plan.FallbackPeers, plan.FallbackShards)
	}

	return obj.ObjectRoot, nil
}
