package srp

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/backkem/hap/pkg/hap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(start, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(start + i)
	}
	return b
}

// Reference values computed independently for a = 00..1f, b = 20..3f,
// salt = 00..0f and setup code 123-45-678.
const (
	vecA16 = "203e5bc55133e8d2917aac4b7d78b82c"
	vecB16 = "07d6c4aa0346640454e4f4f67795bb16"
	vecK   = "984c328f632b1df14f332e2ed61f1d79a47bcd577a2fa4918890f0be32ee32ea42a719e993c4ac85e227befc17e431082944278c877c3e712b0788846ac8833c"
	vecM1  = "e968efc8f94bf2201141350297b1365b31b75982a38314fc616767e3cc798e3ffca6e595bf83922bf9e3357b0582463091a8cea9cb7648d53ecec64e87492cec"
	vecM2  = "9a11d2879e7dcf6a7f22bfa9889e89390727f47bb5846505593f54c4e02654424dacf9906fd3b1d3b467abc5d4c22e35d5872132ed1d68e4b3c5bf4d3e2d1191"
)

func TestGroup(t *testing.T) {
	assert.Equal(t, 3072, groupN.BitLen())
	assert.True(t, groupN.ProbablyPrime(8))
	assert.Len(t, groupN.Bytes(), PublicKeySize)
}

func TestKnownAnswer(t *testing.T) {
	salt := seq(0, 16)

	v := NewVerifier(Username, "123-45-678", salt)
	v.rand = bytes.NewReader(seq(32, 32))
	B, err := v.PublicKey()
	require.NoError(t, err)
	require.Len(t, B, PublicKeySize)
	assert.Equal(t, vecB16, hex.EncodeToString(B[:16]))

	c := NewClient(Username, "123-45-678")
	c.rand = bytes.NewReader(seq(0, 32))
	A, err := c.PublicKey()
	require.NoError(t, err)
	require.Len(t, A, PublicKeySize)
	assert.Equal(t, vecA16, hex.EncodeToString(A[:16]))

	m1, err := c.ProcessChallenge(salt, B)
	require.NoError(t, err)
	assert.Equal(t, vecM1, hex.EncodeToString(m1))
	assert.Equal(t, vecK, hex.EncodeToString(c.SessionKey()))

	require.NoError(t, v.ProcessClientKey(A))
	m2, err := v.VerifyClientProof(m1)
	require.NoError(t, err)
	assert.Equal(t, vecM2, hex.EncodeToString(m2))

	require.NoError(t, c.VerifyServerProof(m2))
	assert.Equal(t, c.SessionKey(), v.SessionKey())
}

// Test vector for SRP6a with the 3072-bit group and SHA-512, as published
// with the HAP pair-setup profile (RFC 5054 inputs).
const (
	rfcUser     = "alice"
	rfcPassword = "password123"
	rfcSalt     = "beb25379d1a8581eb5a727673a2441ee"
	rfcA        = "60975527035cf2ad1989806f0407210bc81edc04e2762a56afd529ddda2d4393"
	rfcB        = "e487cb59d31ac550471e81f00f6928e01dda08e974a004f49e61f5d105284d20"
)

const (
	rfcVerifier = "9b5e061701ea7aeb39cf6e3519655a853cf94c75caf2555ef1faf759bb79cb47" +
		"7014e04a88d68ffc05323891d4c205b8de81c2f203d8fad1b24d2c109737f1be" +
		"bbd71f912447c4a03c26b9fad8edb3e780778e302529ed1ee138ccfc36d4ba31" +
		"3cc48b14ea8c22a0186b222e655f2df5603fd75df76b3b08ff8950069add03a7" +
		"54ee4ae88587cce1bfde36794dbae4592b7b904f442b041cb17aebad1e3aebe3" +
		"cbe99de65f4bb1fa00b0e7af06863db53b02254ec66e781e3b62a8212c86beb0" +
		"d50b5ba6d0b478d8c4e9bbcec21765326fbd14058d2bbde2c33045f03873e539" +
		"48d78b794f0790e48c36aed6e880f557427b2fc06db5e1e2e1d7e661ac482d18" +
		"e528d7295ef7437295ff1a72d402771713f16876dd050ae5b7ad53ccb90855c9" +
		"3956648358adfd966422f52498732d68d1d7fbef10d78034ab8dcb6f0fcf885c" +
		"c2b2ea2c3e6ac86609ea058a9da8cc63531dc915414df568b09482ddac1954de" +
		"c7eb714f6ff7d44cd5b86f6bd115810930637c01d0f6013bc9740fa2c633ba89"
	rfcPublicA = "fab6f5d2615d1e323512e7991cc37443f487da604ca8c9230fcb04e541dce628" +
		"0b27ca4680b0374f179dc3bdc7553fe62459798c701ad864a91390a28c93b644" +
		"adbf9c00745b942b79f9012a21b9b78782319d83a1f8362866fbd6f46bfc0ddb" +
		"2e1ab6e4b45a9906b82e37f05d6f97f6a3eb6e182079759c4f6847837b62321a" +
		"c1b4fa68641fcb4bb98dd697a0c73641385f4bab25b793584cc39fc8d48d4bd8" +
		"67a9a3c10f8ea12170268e34fe3bbe6ff89998d60da2f3e4283cbec1393d52af" +
		"724a57230c604e9fbce583d7613e6bffd67596ad121a8707eec4694495703368" +
		"6a155f644d5c5863b48f61bdbf19a53eab6dad0a186b8c152e5f5d8cad4b0ef8" +
		"aa4ea5008834c3cd342e5e0f167ad04592cd8bd279639398ef9e114dfaaab919" +
		"e14e850989224ddd98576d79385d2210902e9f9b1f2d86cfa47ee244635465f7" +
		"1058421a0184be51dd10cc9d079e6f1604e7aa9b7cf7883c7d4ce12b06ebe160" +
		"81e23f27a231d18432d7d1bb55c28ae21ffcf005f57528d15a88881bb3bbb7fe"
	rfcPublicB = "40f57088a482d4c7733384fe0d301fddca9080ad7d4f6fdf09a01006c3cb6d56" +
		"2e41639ae8fa21de3b5dba7585b275589bdb279863c562807b2b99083cd1429c" +
		"dbe89e25bfbd7e3cad3173b2e3c5a0b174da6d5391e6a06e465f037a40062548" +
		"39a56bf76da84b1c94e0ae208576156fe5c140a4ba4ffc9e38c3b07b88845fc6" +
		"f7ddda93381fe0ca6084c4cd2d336e5451c464ccb6ec65e7d16e548a273e8262" +
		"84af2559b6264274215960fff47bdd63d3aff064d6137af769661c9d4fee4738" +
		"2603c88eaa0980581d07758461b777e4356dda5835198b51feea308d70f75450" +
		"b71675c08c7d8302fd7539dd1ff2a11cb4258aa70d234436aa42b6a0615f3f91" +
		"5d55cc3b966b2716b36e4d1a06ce5e5d2ea3bee5a1270e8751da45b60b997b0f" +
		"fdb0f9962fee4f03bee780ba0a845b1d9271421783ae6601a61ea2e342e4f2e8" +
		"bc935a409ead19f221bd1b74e2964dd19fc845f60efc09338b60b6b256d8cac8" +
		"89cca306cc370a0b18c8b886e95da0af5235fef4393020d2b7f3056904759042"
	rfcScrambler = "03ae5f3c3fa9eff1a50d7dbb8d2f60a1ea66ea712d50ae976ee34641a1cd0e51" +
		"c4683da383e8595d6cb56a15d5fbc7543e07fbddd316217e01a391a18ef06dff"
	rfcPremaster = "f1036fecd017c8239c0d5af7e0fcf0d408b009e36411618a60b23aabbfc38339" +
		"7268231214baacdc94ca1c53f442fb51c1b027c318ae238e16414d60d1881b66" +
		"486ade10ed02ba33d098f6ce9bcf1bb0c46ca2c47f2f174c59a9c61e2560899b" +
		"83ef61131e6fb30b714f4e43b735c9fe6080477c1b83e4093e4d456b9bca492c" +
		"f9339d45bc42e67ce6c02c243e49f5da42a869ec855780e84207b8a1ea6501c4" +
		"78aac0dfd3d22614f531a00d826b7954ae8b14a985a429315e6dd3664cf47181" +
		"496a94329cde8005cae63c2f9ca4969bfe84001924037c446559bdbb9db9d4dd" +
		"142fbcd75eef2e162c843065d99e8f05762c4db7abd9db203d41ac85a58c05bd" +
		"4e2dbf822a934523d54e0653d376ce8b56dcb4527dddc1b994dc7509463a7468" +
		"d7f02b1beb1685714ce1dd1e71808a137f788847b7c6b7bfa1364474b3b7e894" +
		"78954f6a8e68d45b85a88e4ebfec13368ec0891c3bc86cf50097880178d86135" +
		"e728723458538858d715b7b247406222c1019f53603f016952d497100858824c"
	rfcSessionKey = "5cbc219db052138ee1148c71cd4498963d682549ce91ca24f098468f06015beb" +
		"6af245c2093f98c3651bca83ab8cab2b580bbf02184fefdf26142f73df95ac50"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestPublishedVector(t *testing.T) {
	salt := mustHex(t, rfcSalt)

	v := NewVerifier(rfcUser, rfcPassword, salt)
	v.rand = bytes.NewReader(mustHex(t, rfcB))
	assert.Equal(t, rfcVerifier, hex.EncodeToString(pad(v.v)))
	B, err := v.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, rfcPublicB, hex.EncodeToString(B))

	c := NewClient(rfcUser, rfcPassword)
	c.rand = bytes.NewReader(mustHex(t, rfcA))
	A, err := c.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, rfcPublicA, hex.EncodeToString(A))

	u := scrambler(c.A, v.B)
	assert.Equal(t, rfcScrambler, hex.EncodeToString(u.FillBytes(make([]byte, 64))))

	m1, err := c.ProcessChallenge(salt, B)
	require.NoError(t, err)
	assert.Equal(t, rfcSessionKey, hex.EncodeToString(c.SessionKey()))

	require.NoError(t, v.ProcessClientKey(A))
	assert.Equal(t, rfcSessionKey, hex.EncodeToString(v.SessionKey()))
	m2, err := v.VerifyClientProof(m1)
	require.NoError(t, err)
	require.NoError(t, c.VerifyServerProof(m2))

	S := mustHex(t, rfcPremaster)
	assert.Equal(t, hashOf(S), c.SessionKey())
}

func TestSessionKeyHashesPaddedPremaster(t *testing.T) {
	S := big.NewInt(0x0102)
	assert.Equal(t, hashOf(pad(S)), sessionKey(S))
	assert.NotEqual(t, hashOf(S.Bytes()), sessionKey(S))
}

func TestWrongPassword(t *testing.T) {
	salt := seq(0, 16)
	v := NewVerifier(Username, "123-45-678", salt)
	B, err := v.PublicKey()
	require.NoError(t, err)

	c := NewClient(Username, "111-22-333")
	A, err := c.PublicKey()
	require.NoError(t, err)
	m1, err := c.ProcessChallenge(salt, B)
	require.NoError(t, err)

	require.NoError(t, v.ProcessClientKey(A))
	_, err = v.VerifyClientProof(m1)
	if !errors.Is(err, ErrBadClientProof) || !errors.Is(err, hap.ErrAuthentication) {
		t.Fatalf("VerifyClientProof() error = %v, want ErrBadClientProof", err)
	}
}

func TestBadServerProof(t *testing.T) {
	salt := seq(0, 16)
	v := NewVerifier(Username, "123-45-678", salt)
	B, _ := v.PublicKey()

	c := NewClient(Username, "123-45-678")
	_, err := c.ProcessChallenge(salt, B)
	require.NoError(t, err)

	err = c.VerifyServerProof(make([]byte, 64))
	assert.ErrorIs(t, err, ErrBadServerProof)
	assert.ErrorIs(t, err, hap.ErrAuthentication)
}

func TestRejectsDegenerateServerKey(t *testing.T) {
	tests := []struct {
		name string
		B    []byte
	}{
		{"zero", make([]byte, PublicKeySize)},
		{"N", groupN.Bytes()},
		{"2N", new(big.Int).Lsh(groupN, 1).Bytes()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClient(Username, "123-45-678")
			_, err := c.ProcessChallenge(seq(0, 16), tc.B)
			assert.ErrorIs(t, err, ErrInvalidPublicKey)
		})
	}
}

func TestRejectsDegenerateClientKey(t *testing.T) {
	v := NewVerifier(Username, "123-45-678", seq(0, 16))
	_, err := v.PublicKey()
	require.NoError(t, err)
	assert.ErrorIs(t, v.ProcessClientKey(groupN.Bytes()), ErrInvalidPublicKey)
}

func TestStateOrder(t *testing.T) {
	c := NewClient(Username, "123-45-678")
	assert.ErrorIs(t, c.VerifyServerProof(nil), ErrInvalidState)

	v := NewVerifier(Username, "123-45-678", seq(0, 16))
	assert.ErrorIs(t, v.ProcessClientKey(seq(1, 384)), ErrInvalidState)
	_, err := v.VerifyClientProof(nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}
