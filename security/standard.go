package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
)

// DataClass identifies the kind of payload being decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
)

// Handler decrypts strings and streams of one document.
type Handler interface {
	// Decrypt decrypts data owned by the indirect object ref. cryptFilter
	// names a stream's /Crypt filter, or "" for the document default.
	Decrypt(ref raw.ObjectRef, data []byte, class DataClass, cryptFilter string) ([]byte, error)
	EncryptMetadata() bool
}

type cryptAlgo int

const (
	algoUnset cryptAlgo = iota
	algoNone
	algoRC4
	algoAES
	algoAES256
)

type standardHandler struct {
	key         []byte
	r           int
	streamAlgo  cryptAlgo
	stringAlgo  cryptAlgo
	filters     map[string]cryptAlgo
	encryptMeta bool
}

// NewStandardHandler authenticates password against the /Encrypt
// dictionary and returns a Handler. Failures are EncryptionRequired.
func NewStandardHandler(enc *raw.DictObj, fileID []byte, password string) (Handler, error) {
	const op = "open encrypted document"
	if f := enc.NameValue("Filter"); f != "Standard" {
		return nil, pdferr.Errorf(pdferr.KindEncryptionRequired, op, "unsupported security handler %q", f)
	}
	v := intVal(enc, "V", 0)
	r := intVal(enc, "R", 2)
	if v < 1 || v > 5 || r < 2 || r > 6 {
		return nil, pdferr.Errorf(pdferr.KindEncryptionRequired, op, "unsupported V=%d R=%d", v, r)
	}
	keyBits := intVal(enc, "Length", 40)
	if v == 1 {
		keyBits = 40
	}
	if v == 4 && keyBits < 128 {
		keyBits = 128
	}
	if keyBits%8 != 0 || keyBits < 40 || keyBits > 256 {
		return nil, pdferr.Errorf(pdferr.KindEncryptionRequired, op, "invalid key length %d", keyBits)
	}
	h := &standardHandler{r: r, encryptMeta: true, filters: map[string]cryptAlgo{}}
	if b, ok := enc.Get("EncryptMetadata"); ok {
		if bv, ok := b.(raw.BoolObj); ok {
			h.encryptMeta = bv.V
		}
	}

	base := algoRC4
	if v >= 4 {
		var err error
		h.filters, err = parseCryptFilters(enc)
		if err != nil {
			return nil, pdferr.New(pdferr.KindEncryptionRequired, op, err)
		}
		h.streamAlgo = h.resolveFilter(enc.NameValue("StmF"))
		h.stringAlgo = h.resolveFilter(enc.NameValue("StrF"))
	} else {
		h.streamAlgo, h.stringAlgo = base, base
	}

	o := strVal(enc, "O")
	u := strVal(enc, "U")
	pwd := []byte(password)
	var err error
	if r >= 5 {
		h.key, err = authenticateAES256(pwd, o, u, strVal(enc, "OE"), strVal(enc, "UE"), r)
	} else {
		p := int32(intVal(enc, "P", 0))
		h.key = computeKey(pwd, o, p, fileID, keyBits/8, r, h.encryptMeta)
		if !checkUserPassword(h.key, u, fileID, r) {
			// the password may be the owner's, which unlocks the user's
			user := ownerToUserPassword(pwd, o, keyBits/8, r)
			h.key = computeKey(user, o, p, fileID, keyBits/8, r, h.encryptMeta)
			if !checkUserPassword(h.key, u, fileID, r) {
				err = errors.New("invalid password")
			}
		}
	}
	if err != nil {
		return nil, pdferr.New(pdferr.KindEncryptionRequired, op, err)
	}
	return h, nil
}

func (h *standardHandler) EncryptMetadata() bool { return h.encryptMeta }

func (h *standardHandler) resolveFilter(name string) cryptAlgo {
	switch name {
	case "", "Identity":
		return algoNone
	}
	if a, ok := h.filters[name]; ok {
		return a
	}
	return algoNone
}

func (h *standardHandler) Decrypt(ref raw.ObjectRef, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	algo := h.stringAlgo
	if class == DataClassStream {
		algo = h.streamAlgo
	}
	if cryptFilter != "" {
		algo = h.resolveFilter(cryptFilter)
	}
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, ref, algo)
	if algo == algoRC4 {
		return rc4Crypt(key, data)
	}
	return aesDecrypt(key, data)
}

func parseCryptFilters(enc *raw.DictObj) (map[string]cryptAlgo, error) {
	out := make(map[string]cryptAlgo)
	cfObj, ok := enc.Get("CF")
	if !ok {
		return out, nil
	}
	cf, ok := cfObj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("CF must be a dictionary")
	}
	for _, name := range cf.Keys() {
		entry, ok := cf.KV[name].(*raw.DictObj)
		if !ok {
			return nil, fmt.Errorf("crypt filter %s is not a dictionary", name)
		}
		switch m := entry.NameValue("CFM"); m {
		case "V2":
			out[name] = algoRC4
		case "AESV2":
			out[name] = algoAES
		case "AESV3":
			out[name] = algoAES256
		case "None", "":
			out[name] = algoNone
		default:
			return nil, fmt.Errorf("unsupported crypt filter method %s", m)
		}
	}
	return out, nil
}

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

// computeKey derives the file key for revisions 2-4.
func computeKey(pwd, owner []byte, p int32, fileID []byte, keyLen, r int, encryptMeta bool) []byte {
	h := md5.New()
	h.Write(padPassword(pwd))
	h.Write(owner)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(p))
	h.Write(pBuf[:])
	h.Write(fileID)
	if r >= 4 && !encryptMeta {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := h.Sum(nil)
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:keyLen])
			key = sum[:]
		}
	}
	return key[:keyLen]
}

// ownerKey is the RC4 key that encrypts the padded user password into
// the /O entry.
func ownerKey(owner []byte, keyLen, r int) []byte {
	sum := md5.Sum(padPassword(owner))
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:])
		}
	}
	if r == 2 {
		keyLen = 5
	}
	return sum[:keyLen]
}

// ownerToUserPassword decrypts the padded user password from the /O
// entry with the key derived from the owner password.
func ownerToUserPassword(owner, o []byte, keyLen, r int) []byte {
	if len(o) < 32 {
		return nil
	}
	key := ownerKey(owner, keyLen, r)
	val := append([]byte{}, o[:32]...)
	if r == 2 {
		return rc4Simple(key, val)
	}
	tmp := make([]byte, len(key))
	for i := 19; i >= 0; i-- {
		for j := range key {
			tmp[j] = key[j] ^ byte(i)
		}
		val = rc4Simple(tmp, val)
	}
	return val
}

func checkUserPassword(key, userEntry, fileID []byte, r int) bool {
	if len(userEntry) < 16 {
		return false
	}
	if r == 2 {
		return len(userEntry) >= 32 && bytes.Equal(rc4Simple(key, passwordPadding), userEntry[:32])
	}
	sum := md5.Sum(append(append([]byte{}, passwordPadding...), fileID...))
	val := sum[:]
	tmp := make([]byte, len(key))
	for i := 0; i < 20; i++ {
		for j := range key {
			tmp[j] = key[j] ^ byte(i)
		}
		val = rc4Simple(tmp, val)
	}
	return bytes.Equal(val[:16], userEntry[:16])
}

func authenticateAES256(pwd, o, u, oe, ue []byte, r int) ([]byte, error) {
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	if len(u) >= 48 && len(ue) >= 32 {
		if bytes.Equal(hashR6(pwd, u[32:40], nil, r), u[:32]) {
			return aesNoPad(hashR6(pwd, u[40:48], nil, r), ue[:32])
		}
	}
	if len(o) >= 48 && len(oe) >= 32 && len(u) >= 48 {
		if bytes.Equal(hashR6(pwd, o[32:40], u[:48], r), o[:32]) {
			return aesNoPad(hashR6(pwd, o[40:48], u[:48], r), oe[:32])
		}
	}
	return nil, errors.New("invalid password")
}

// hashR6 is the SHA-256 hash of revision 5 and the iterated hash of
// revision 6.
func hashR6(pwd, salt, extra []byte, r int) []byte {
	h := sha256.New()
	h.Write(pwd)
	h.Write(salt)
	h.Write(extra)
	k := h.Sum(nil)
	if r < 6 {
		return k
	}
	for round := 0; ; round++ {
		seq := make([]byte, 0, len(pwd)+len(k)+len(extra))
		seq = append(seq, pwd...)
		seq = append(seq, k...)
		seq = append(seq, extra...)
		k1 := bytes.Repeat(seq, 64)
		block, _ := aes.NewCipher(k[:16])
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)
		var mod int
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		default:
			s := sha512.Sum512(e)
			k = s[:]
		}
		if round >= 63 && int(e[len(e)-1]) <= round-31 {
			break
		}
	}
	return k[:32]
}

func aesNoPad(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, data)
	return out, nil
}

func objectKey(fileKey []byte, ref raw.ObjectRef, algo cryptAlgo) []byte {
	if algo == algoAES256 {
		return fileKey
	}
	key := append([]byte{}, fileKey...)
	key = append(key, byte(ref.Num), byte(ref.Num>>8), byte(ref.Num>>16), byte(ref.Gen), byte(ref.Gen>>8))
	if algo == algoAES {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	sum := md5.Sum(key)
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

func rc4Simple(key, data []byte) []byte {
	out, _ := rc4Crypt(key, data)
	return out
}

func rc4Crypt(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

func aesDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes ciphertext too short")
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		// some producers truncate; decrypt the whole blocks
		ct = ct[:len(ct)-len(ct)%aes.BlockSize]
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	if n := len(out); n > 0 {
		if pad := int(out[n-1]); pad > 0 && pad <= aes.BlockSize && pad <= n {
			out = out[:n-pad]
		}
	}
	return out, nil
}

func intVal(d *raw.DictObj, key string, def int) int {
	o, ok := d.Get(key)
	if !ok {
		return def
	}
	if n, ok := o.(raw.NumberObj); ok {
		return int(n.Int())
	}
	return def
}

func strVal(d *raw.DictObj, key string) []byte {
	o, _ := d.Get(key)
	s, _ := o.(raw.StringObj)
	return s.Bytes
}
