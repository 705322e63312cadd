package tlsrand

import "crypto/rand"

// We need to fix randoms for tests, hence abstraction

type Rand interface {
	Read(data []byte)
}

type cryptoRand struct {
}

func (c *cryptoRand) Read(data []byte) {
	if _, err := rand.Read(data); err != nil {
		panic("failed to read key material from crypto rand: " + err.Error())
	}
}

type fixedRand struct {
	counter byte
}

func (c *fixedRand) Read(data []byte) {
	for i := range data {
		data[i] = byte(i) + c.counter
	}
	c.counter++
}

func CryptoRand() Rand {
	return &cryptoRand{}
}

func FixedRand() Rand {
	return &fixedRand{}
}
