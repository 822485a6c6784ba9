package kss

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
)

// LocalFilesystem serves and stores image files from a local folder.
// Pre-signed URLs point back at its own /civicvoice/files route and
// are signed with an RSA key.
type LocalFilesystem struct {
	router     *mux.Router
	baseFolder string
	publicURL  url.URL
	privateKey *rsa.PrivateKey
}

// NewLocalFilesystem returns a new local filesystem driver and adds
// its file route to the router. If privateKey is nil, a random key is
// generated; signed URLs then only survive as long as this instance.
func NewLocalFilesystem(router *mux.Router, baseFolder string, publicURL url.URL, privateKey *rsa.PrivateKey) (*LocalFilesystem, error) {
	if privateKey == nil {
		logger.Default().Warn("no private key provided to sign file URLs, generating a random one")
		var err error
		privateKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
	}
	f := LocalFilesystem{router: router, baseFolder: baseFolder, publicURL: publicURL, privateKey: privateKey}
	f.configure()
	return &f, nil
}

func (f LocalFilesystem) configure() {
	logger.Default().Debugln("local file routes enabled")
	logger.Default().Debugln("  handle file route: /civicvoice/files GET PUT")

	f.router.Handle("/civicvoice/files", http.HandlerFunc(f.handler)).
		Methods(http.MethodOptions, http.MethodGet, http.MethodPut)
}

func (f LocalFilesystem) handler(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	u := r.URL
	if u.Scheme == "" && u.Host == "" {
		u.Scheme = f.publicURL.Scheme
		u.Host = f.publicURL.Host
	}

	if !f.isValid(u.String()) {
		logger.FromContext(r.Context()).Errorf("invalid signature for %s", u.String())
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return
	}

	key := v.Get("key")
	if r.Method != v.Get("method") {
		logger.FromContext(r.Context()).Errorf("signature valid for %s, but used for %s", v.Get("method"), r.Method)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if strings.Contains(key, "..") {
		http.Error(w, ".. not authorized in keys", http.StatusBadRequest)
		return
	}
	filePath := filepath.Join(f.baseFolder, key, "file")

	logger.FromContext(r.Context()).Infof("files: [%s] key '%s'", r.Method, key)
	switch r.Method {
	case http.MethodGet:
		http.ServeFile(w, r, filePath)

	case http.MethodPut:
		if err := os.MkdirAll(filepath.Join(f.baseFolder, key), 0700); err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorf("could not create folder for key '%s'", key)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		dstFile, err := os.Create(filePath)
		if err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorf("could not create file for key '%s'", key)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		defer dstFile.Close()
		if _, err = io.Copy(dstFile, r.Body); err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorf("could not write file for key '%s'", key)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Delete removes the key's file.
func (f LocalFilesystem) Delete(key string) error {
	return os.RemoveAll(filepath.Join(f.baseFolder, key))
}

// DeleteAllWithPrefix removes all files whose key starts with prefix.
func (f LocalFilesystem) DeleteAllWithPrefix(prefix string) error {
	return os.RemoveAll(filepath.Join(f.baseFolder, prefix))
}

// GetPreSignedURL returns a signed URL that can be used with the given
// method until expiry. key must be a valid file name.
func (f LocalFilesystem) GetPreSignedURL(method, key string, expireIn time.Duration) (URL string, err error) {
	if strings.Contains(key, "..") {
		err = fmt.Errorf("'..' is not allowed in a key")
		return
	}
	v := url.Values{}
	v.Set("key", key)
	v.Set("expiry", time.Now().Add(expireIn).Format(time.RFC3339))
	v.Set("method", method)
	u := url.URL{
		Scheme:   f.publicURL.Scheme,
		Host:     f.publicURL.Host,
		Path:     f.publicURL.Path + "/civicvoice/files",
		RawQuery: v.Encode(),
	}

	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	hashed := sha256.Sum256(data)
	signature, err := rsa.SignPKCS1v15(rand.Reader, f.privateKey, crypto.SHA256, hashed[:])
	if err != nil {
		return
	}

	v.Set("signature", base64.RawURLEncoding.EncodeToString(signature))
	u.RawQuery = v.Encode()
	URL = u.String()
	return
}

// isValid tells whether this url carries a valid, unexpired signature.
func (f LocalFilesystem) isValid(URL string) bool {
	u, err := url.Parse(URL)
	if err != nil {
		return false
	}
	v := u.Query()
	key := v.Get("key")
	if key == "" || strings.Contains(key, "..") {
		return false
	}
	t, err := time.Parse(time.RFC3339, v.Get("expiry"))
	if err != nil || t.Before(time.Now()) {
		return false
	}

	signature, err := base64.RawURLEncoding.DecodeString(v.Get("signature"))
	if err != nil {
		return false
	}
	v.Del("signature")
	u.RawQuery = v.Encode()

	data, err := json.Marshal(u)
	if err != nil {
		return false
	}
	hashed := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(&f.privateKey.PublicKey, crypto.SHA256, hashed[:], signature) == nil
}
