package jwt

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// KeySource resuelve la clave pública de verificación por kid.
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// RemoteJWKS resuelve claves desde un JWKS externo (URL o archivo) con cache TTL.
// Un kid desconocido fuerza un refresh (a lo sumo uno concurrente vía singleflight).
type RemoteJWKS struct {
	URL  string
	File string
	TTL  time.Duration

	// MinRefresh limita los refresh forzados por kid desconocido.
	MinRefresh time.Duration
	Client     *http.Client

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
	group     singleflight.Group
	now       func() time.Time
}

func NewRemoteJWKS(url, file string, ttl time.Duration) *RemoteJWKS {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RemoteJWKS{
		URL:        url,
		File:       file,
		TTL:        ttl,
		MinRefresh: 30 * time.Second,
		Client:     &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
}

func (r *RemoteJWKS) PublicKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	now := r.now()

	r.mu.RLock()
	fresh := r.keys != nil && now.Sub(r.fetchedAt) < r.TTL
	pub, hit := r.lookup(kid)
	age := now.Sub(r.fetchedAt)
	r.mu.RUnlock()

	if fresh && hit {
		return pub, nil
	}
	// Cache vigente pero kid desconocido: sólo refrescamos si pasó MinRefresh.
	if fresh && !hit && age < r.MinRefresh {
		return nil, ErrKidNotFound
	}

	if _, err, _ := r.group.Do("jwks", func() (any, error) {
		return nil, r.refresh(ctx)
	}); err != nil {
		// Con claves viejas en cache preferimos seguir validando.
		r.mu.RLock()
		pub, hit = r.lookup(kid)
		r.mu.RUnlock()
		if hit {
			return pub, nil
		}
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if pub, ok := r.lookup(kid); ok {
		return pub, nil
	}
	return nil, ErrKidNotFound
}

// lookup requiere mu tomado. kid vacío sólo resuelve si hay una única clave.
func (r *RemoteJWKS) lookup(kid string) (crypto.PublicKey, bool) {
	if kid == "" {
		if len(r.keys) == 1 {
			for _, k := range r.keys {
				return k, true
			}
		}
		return nil, false
	}
	k, ok := r.keys[kid]
	return k, ok
}

func (r *RemoteJWKS) refresh(ctx context.Context) error {
	raw, err := r.fetch(ctx)
	if err != nil {
		return err
	}
	keys, err := ParseJWKS(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.keys = keys
	r.fetchedAt = r.now()
	r.mu.Unlock()
	return nil
}

func (r *RemoteJWKS) fetch(ctx context.Context) ([]byte, error) {
	if r.File != "" {
		return os.ReadFile(r.File)
	}
	if r.URL == "" {
		return nil, errors.New("jwks: no url or file configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// ParseJWKS decodifica un documento JWKS. Soporta OKP/Ed25519 y RSA; las
// claves con otro kty o use distinto de "sig" se ignoran.
func ParseJWKS(raw []byte) (map[string]crypto.PublicKey, error) {
	var doc jwks
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("jwks: decode: %w", err)
	}
	out := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		switch k.Kty {
		case "OKP":
			if k.Crv != "Ed25519" {
				continue
			}
			x, err := base64.RawURLEncoding.DecodeString(k.X)
			if err != nil || len(x) != ed25519.PublicKeySize {
				continue
			}
			out[k.Kid] = ed25519.PublicKey(x)
		case "RSA":
			n, err1 := base64.RawURLEncoding.DecodeString(k.N)
			e, err2 := base64.RawURLEncoding.DecodeString(k.E)
			if err1 != nil || err2 != nil || len(n) == 0 || len(e) == 0 {
				continue
			}
			out[k.Kid] = &rsa.PublicKey{
				N: new(big.Int).SetBytes(n),
				E: int(new(big.Int).SetBytes(e).Int64()),
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("jwks: no usable keys")
	}
	return out, nil
}
