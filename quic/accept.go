package quic

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"net"
	"sync"
)

// acceptHashKey is the process-wide, lazily-initialized HMAC key used to
// compute AcceptHash values. It is generated once per process from a
// random seed so that accept-hash collisions cannot be engineered by an
// attacker who doesn't already know the key.
var (
	acceptHashOnce sync.Once
	acceptHashKey  []byte
)

func initAcceptHashKey() {
	acceptHashOnce.Do(func() {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// crypto/rand failing is a fatal platform problem; there is
			// no sane fallback that preserves the anti-collision property
			// this key exists for.
			panic("http3: failed to seed accept-hash key: " + err.Error())
		}
		acceptHashKey = key
	})
}

// AcceptHash computes the 64-bit digest used to look up a server-side
// connection before its destination CID has been authenticated: a keyed
// hash over the peer's socket address and the raw (still-encrypted)
// destination CID bytes. A *net.UDPAddr is hashed by IP family, IP and
// port; any other net.Addr is hashed by its String() form.
func AcceptHash(sa net.Addr, destCID []byte) uint64 {
	initAcceptHashKey()

	mac := hmac.New(sha256.New, acceptHashKey)

	udpAddr, ok := sa.(*net.UDPAddr)
	if ok {
		if ip4 := udpAddr.IP.To4(); ip4 != nil {
			mac.Write([]byte{4})
			mac.Write(ip4)
		} else {
			mac.Write([]byte{6})
			mac.Write(udpAddr.IP.To16())
		}
		var portBuf [2]byte
		binary.BigEndian.PutUint16(portBuf[:], uint16(udpAddr.Port))
		mac.Write(portBuf[:])
	} else {
		mac.Write([]byte{0})
		mac.Write([]byte(sa.String()))
	}

	mac.Write([]byte{byte(len(destCID))})
	mac.Write(destCID)

	sum := mac.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// ResetAcceptHashKeyForTest reseeds the process-wide HMAC key. It exists
// only so tests can assert AcceptHash's determinism/collision properties
// without cross-test interference from the lazily initialized singleton.
func ResetAcceptHashKeyForTest() {
	acceptHashOnce = sync.Once{}
	initAcceptHashKey()
}
