package schemes

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dreamware/ozonedb/internal/ozerr"
)

// Code identifies which concrete scheme produced a stored byte sequence,
// so a later reader — possibly running under different configured
// defaults — can still reverse the transform. Stored in a value's Meta
// (§3, §6).
type Code byte

const (
	CodeNoopEncrypt     Code = 0
	CodeChaCha20Poly1305 Code = 1

	CodeCRC32   Code = 0
	CodeSHA256  Code = 1

	CodeXXHash64 Code = 0
	CodeSHA256Trunc128 Code = 1
)

// Hasher computes a deterministic digest of data. Used both as the
// key-hasher KH (replacing an over-long key with a fixed-width digest —
// the ozone-key) and as the pseudo-random zone/shard selector PR
// (typically a cheaper hash than KH, since it need not resist
// adversarial collisions, only distribute load).
type Hasher interface {
	Code() Code
	Hash(data []byte) []byte
}

// Checksummer computes and verifies an integrity digest over a stored
// value.
type Checksummer interface {
	Code() Code
	Len() int
	Sum(data []byte) []byte
	Verify(data, sum []byte) bool
}

// Encrypter provides optional at-rest confidentiality for stored values.
type Encrypter interface {
	Code() Code
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// --- Hasher implementations ---------------------------------------------

// XXHasher is the default pseudo-random hash PR: fast, non-cryptographic,
// used purely to spread keys evenly across zones and shards.
type XXHasher struct{}

func (XXHasher) Code() Code { return CodeXXHash64 }

func (XXHasher) Hash(data []byte) []byte {
	sum := xxhash.Sum64(data)
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(sum >> (8 * i))
	}
	return out
}

// SHA256TruncHasher is the default key-hasher KH: over-long keys are
// replaced by a 128-bit truncated SHA-256 digest, chosen over a faster
// non-cryptographic hash because a collision here silently conflates two
// distinct original keys into one storage slot.
type SHA256TruncHasher struct {
	// OutLen is the number of leading digest bytes kept. Default 16
	// (128 bits) if zero.
	OutLen int
}

func (SHA256TruncHasher) Code() Code { return CodeSHA256Trunc128 }

func (h SHA256TruncHasher) Hash(data []byte) []byte {
	n := h.OutLen
	if n == 0 {
		n = 16
	}
	sum := sha256.Sum256(data)
	return sum[:n]
}

// --- Checksummer implementations ----------------------------------------

// CRC32Checksummer is a lightweight integrity check suitable when
// protection against malicious tampering is not required.
type CRC32Checksummer struct{}

func (CRC32Checksummer) Code() Code { return CodeCRC32 }
func (CRC32Checksummer) Len() int   { return 4 }

func (CRC32Checksummer) Sum(data []byte) []byte {
	sum := crc32.ChecksumIEEE(data)
	return []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
}

func (c CRC32Checksummer) Verify(data, sum []byte) bool {
	got := c.Sum(data)
	return constantEqual(got, sum)
}

// SHA256Checksummer is the default Checksummer: a full SHA-256 digest,
// resistant to accidental and adversarial corruption alike.
type SHA256Checksummer struct{}

func (SHA256Checksummer) Code() Code { return CodeSHA256 }
func (SHA256Checksummer) Len() int   { return sha256.Size }

func (SHA256Checksummer) Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func (c SHA256Checksummer) Verify(data, sum []byte) bool {
	got := c.Sum(data)
	return constantEqual(got, sum)
}

func constantEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// --- Encrypter implementations -------------------------------------------

// NoopEncrypter is the default Encrypter: values are stored as-is. Most
// deployments rely on filesystem-level protection; encryption is opt-in
// per §1 ("optional at-rest encryption").
type NoopEncrypter struct{}

func (NoopEncrypter) Code() Code                          { return CodeNoopEncrypt }
func (NoopEncrypter) Encrypt(p []byte) ([]byte, error)    { return p, nil }
func (NoopEncrypter) Decrypt(c []byte) ([]byte, error)    { return c, nil }

// ChaCha20Poly1305Encrypter is the enabled-encryption option, grounded on
// other_examples' desync use of golang.org/x/crypto for payload
// protection. The nonce is generated fresh per call and prepended to the
// returned ciphertext.
type ChaCha20Poly1305Encrypter struct {
	aead interface {
		NonceSize() int
		Overhead() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewChaCha20Poly1305 constructs an Encrypter from a 32-byte key.
func NewChaCha20Poly1305(key [chacha20poly1305.KeySize]byte) (*ChaCha20Poly1305Encrypter, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, ozerr.Wrap(err, "constructing chacha20poly1305 AEAD", ozerr.Invalid)
	}
	return &ChaCha20Poly1305Encrypter{aead: aead}, nil
}

func (ChaCha20Poly1305Encrypter) Code() Code { return CodeChaCha20Poly1305 }

func (e *ChaCha20Poly1305Encrypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, ozerr.Wrap(err, "generating encryption nonce", ozerr.IO)
	}
	out := e.aead.Seal(nonce, nonce, plaintext, nil)
	return out, nil
}

func (e *ChaCha20Poly1305Encrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	nsz := e.aead.NonceSize()
	if len(ciphertext) < nsz {
		return nil, ozerr.New("ciphertext shorter than nonce", ozerr.Invalid, ozerr.Mismatch)
	}
	nonce, sealed := ciphertext[:nsz], ciphertext[nsz:]
	plain, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ozerr.Wrap(err, "decrypting value", ozerr.Invalid, ozerr.Mismatch)
	}
	return plain, nil
}

// --- Scheme sets & registry ------------------------------------------------

// Set bundles the four scheme slots a host call may override, matching
// RestSchemes<ENC, KH, PR, CS> in fe2o3_o3db_sync/src/db.rs.
type Set struct {
	Enc      Encrypter
	KeyHash  Hasher // KH: hashes over-long keys.
	ZoneHash Hasher // PR: distributes keys across zones/shards.
	Checksum Checksummer
}

// Defaults returns the hard-wired default scheme set used when a host
// call supplies no overrides.
func Defaults() Set {
	return Set{
		Enc:      NoopEncrypter{},
		KeyHash:  SHA256TruncHasher{OutLen: 16},
		ZoneHash: XXHasher{},
		Checksum: SHA256Checksummer{},
	}
}

// Registry resolves a stored Code back to the concrete scheme that
// produced it, so reads remain correct even after the configured
// defaults change. Every Set registered via Register becomes
// resolvable; a Registry from NewRegistry always resolves the hard-wired
// defaults. The zero Registry has nil maps and resolves nothing.
type Registry struct {
	enc   map[Code]Encrypter
	cksum map[Code]Checksummer
	khash map[Code]Hasher
}

// NewRegistry builds a Registry pre-seeded with the hard-wired defaults
// plus any additional schemes supplied.
func NewRegistry(extra ...Set) *Registry {
	r := &Registry{
		enc:   map[Code]Encrypter{},
		cksum: map[Code]Checksummer{},
		khash: map[Code]Hasher{},
	}
	r.add(Defaults())
	for _, s := range extra {
		r.add(s)
	}
	return r
}

func (r *Registry) add(s Set) {
	if s.Enc != nil {
		r.enc[s.Enc.Code()] = s.Enc
	}
	if s.Checksum != nil {
		r.cksum[s.Checksum.Code()] = s.Checksum
	}
	if s.KeyHash != nil {
		r.khash[s.KeyHash.Code()] = s.KeyHash
	}
}

// Register adds (or overrides) the schemes in s, keyed by their Code.
func (r *Registry) Register(s Set) { r.add(s) }

func (r *Registry) Encrypter(c Code) (Encrypter, error) {
	e, ok := r.enc[c]
	if !ok {
		return nil, ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Invalid}, "no encrypter registered for code %d", c)
	}
	return e, nil
}

func (r *Registry) Checksummer(c Code) (Checksummer, error) {
	cs, ok := r.cksum[c]
	if !ok {
		return nil, ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Invalid}, "no checksummer registered for code %d", c)
	}
	return cs, nil
}

func (r *Registry) KeyHasher(c Code) (Hasher, error) {
	h, ok := r.khash[c]
	if !ok {
		return nil, ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Invalid}, "no key hasher registered for code %d", c)
	}
	return h, nil
}

var _ fmt.Stringer = Code(0)

func (c Code) String() string { return fmt.Sprintf("scheme(%d)", byte(c)) }

// OzoneKeyString derives the address used to look up a stored entry,
// independent of how it is framed on disk: raw keys shorter than
// threshold are used as-is; keys of threshold bytes or more are replaced by hasher's
// fixed-width digest, hex-encoded (§3's "ozone-key"). Router computes
// this once per write; InitGcBot recomputes it identically from the raw
// key bytes it reads back out of an index record, so the derived key
// never needs to be persisted anywhere.
func OzoneKeyString(key []byte, threshold int, hasher Hasher) string {
	if len(key) < threshold {
		return string(key)
	}
	return hex.EncodeToString(hasher.Hash(key))
}

// ShardIndex applies hasher to ozoneKey and reduces the digest to a
// value in [0, n) by treating its leading 8 bytes as a big-endian
// uint64. Router uses this to pick a key's zone and, within a zone,
// its CacheBot shard; Supervisor uses the identical function to wire
// FileBot/InitGcBot notifications back to the CacheBot shard that
// owns a given key, so the two selections never disagree.
func ShardIndex(ozoneKey string, hasher Hasher, n int) int {
	if n <= 1 {
		return 0
	}
	digest := hasher.Hash([]byte(ozoneKey))
	var v uint64
	for i := 0; i < 8 && i < len(digest); i++ {
		v = v<<8 | uint64(digest[i])
	}
	return int(v % uint64(n))
}
