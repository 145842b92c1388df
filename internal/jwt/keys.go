package jwt

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dropDatabas3/ironlog/internal/util/atomicwrite"
)

var (
	ErrNoActiveKey = errors.New("no_active_signing_key")
	ErrKidNotFound = errors.New("kid_not_found")
)

// KeySet mantiene la clave Ed25519 activa y, opcionalmente, públicas retiradas
// que siguen validando tokens emitidos antes de una rotación.
type KeySet struct {
	KID  string
	Priv ed25519.PrivateKey
	Pub  ed25519.PublicKey

	retiring map[string]ed25519.PublicKey
}

// GenerateKeySet genera una clave Ed25519 en memoria. Si kid es vacío se
// deriva uno con timestamp.
func GenerateKeySet(kid string) (*KeySet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	if kid == "" {
		kid = "key-" + time.Now().UTC().Format("20060102T150405Z")
	}
	return &KeySet{KID: kid, Priv: priv, Pub: pub}, nil
}

// AddRetiring registra una pública anterior (sólo verificación).
func (k *KeySet) AddRetiring(kid string, pub ed25519.PublicKey) {
	if k.retiring == nil {
		k.retiring = make(map[string]ed25519.PublicKey)
	}
	k.retiring[kid] = pub
}

// Active devuelve la clave de firma activa.
func (k *KeySet) Active() (string, ed25519.PrivateKey, error) {
	if k == nil || len(k.Priv) == 0 {
		return "", nil, ErrNoActiveKey
	}
	return k.KID, k.Priv, nil
}

// PublicKey implementa KeySource: kid vacío resuelve a la activa.
func (k *KeySet) PublicKey(_ context.Context, kid string) (crypto.PublicKey, error) {
	if k == nil {
		return nil, ErrNoActiveKey
	}
	if kid == "" || kid == k.KID {
		return k.Pub, nil
	}
	if pub, ok := k.retiring[kid]; ok {
		return pub, nil
	}
	return nil, ErrKidNotFound
}

// ----- PEM -----

// LoadKeySetPEM lee una clave privada Ed25519 PKCS#8 en PEM.
func LoadKeySetPEM(path, kid string) (*KeySet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return ParseKeySetPEM(raw, kid)
}

// ParseKeySetPEM parsea el bloque "PRIVATE KEY" de raw.
func ParseKeySetPEM(raw []byte, kid string) (*KeySet, error) {
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, errors.New("pem: no PRIVATE KEY block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("pem: parse pkcs8: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("pem: key is not ed25519")
	}
	return &KeySet{KID: kid, Priv: priv, Pub: priv.Public().(ed25519.PublicKey)}, nil
}

// EncodePEM serializa la privada activa en PKCS#8.
func (k *KeySet) EncodePEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.Priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// WritePEM escribe la privada con permisos 0600, creando el directorio si falta.
func (k *KeySet) WritePEM(path string) error {
	b, err := k.EncodePEM()
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(path, b, 0o600)
}

// ----- JWKS (serialización) -----

type jwk struct {
	Kty string `json:"kty"`           // "OKP" | "RSA"
	Crv string `json:"crv,omitempty"` // "Ed25519"
	Kid string `json:"kid"`
	Alg string `json:"alg,omitempty"` // "EdDSA"
	Use string `json:"use,omitempty"` // "sig"
	X   string `json:"x,omitempty"`   // base64url(pub)
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

func okp(kid string, pub ed25519.PublicKey) jwk {
	return jwk{
		Kty: "OKP",
		Crv: "Ed25519",
		Kid: kid,
		Alg: "EdDSA",
		Use: "sig",
		X:   base64.RawURLEncoding.EncodeToString(pub),
	}
}

// JWKSJSON devuelve el JWKS (activa + retiradas, sólo públicas) en JSON.
func (k *KeySet) JWKSJSON() []byte {
	j := jwks{Keys: []jwk{okp(k.KID, k.Pub)}}
	for kid, pub := range k.retiring {
		j.Keys = append(j.Keys, okp(kid, pub))
	}
	b, _ := json.Marshal(j)
	return b
}
