package tlv

// Type is the type octet of a TLV8 item.
type Type byte

// HAP pairing item types.
const (
	TypeMethod        Type = 0x00
	TypeIdentifier    Type = 0x01
	TypeSalt          Type = 0x02
	TypePublicKey     Type = 0x03
	TypeProof         Type = 0x04
	TypeEncryptedData Type = 0x05
	TypeState         Type = 0x06
	TypeError         Type = 0x07
	TypeRetryDelay    Type = 0x08
	TypeCertificate   Type = 0x09
	TypeSignature     Type = 0x0A
	TypePermissions   Type = 0x0B
	TypeFragmentData  Type = 0x0C
	TypeFragmentLast  Type = 0x0D
	TypeFlags         Type = 0x13
	TypeSeparator     Type = 0xFF
)

// String returns the item type name.
func (t Type) String() string {
	switch t {
	case TypeMethod:
		return "Method"
	case TypeIdentifier:
		return "Identifier"
	case TypeSalt:
		return "Salt"
	case TypePublicKey:
		return "PublicKey"
	case TypeProof:
		return "Proof"
	case TypeEncryptedData:
		return "EncryptedData"
	case TypeState:
		return "State"
	case TypeError:
		return "Error"
	case TypeRetryDelay:
		return "RetryDelay"
	case TypeCertificate:
		return "Certificate"
	case TypeSignature:
		return "Signature"
	case TypePermissions:
		return "Permissions"
	case TypeFragmentData:
		return "FragmentData"
	case TypeFragmentLast:
		return "FragmentLast"
	case TypeFlags:
		return "Flags"
	case TypeSeparator:
		return "Separator"
	default:
		return "Unknown"
	}
}

// Method is the value of a TypeMethod item.
type Method byte

// Pairing methods.
const (
	MethodPairSetup         Method = 0
	MethodPairSetupWithAuth Method = 1
	MethodPairVerify        Method = 2
	MethodAddPairing        Method = 3
	MethodRemovePairing     Method = 4
	MethodListPairings      Method = 5
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodPairSetup:
		return "PairSetup"
	case MethodPairSetupWithAuth:
		return "PairSetupWithAuth"
	case MethodPairVerify:
		return "PairVerify"
	case MethodAddPairing:
		return "AddPairing"
	case MethodRemovePairing:
		return "RemovePairing"
	case MethodListPairings:
		return "ListPairings"
	default:
		return "Unknown"
	}
}

// ErrorCode is the value of a TypeError item sent by an accessory.
type ErrorCode byte

// Accessory error codes.
const (
	ErrorCodeUnknown        ErrorCode = 0x01
	ErrorCodeAuthentication ErrorCode = 0x02
	ErrorCodeBackoff        ErrorCode = 0x03
	ErrorCodeMaxPeers       ErrorCode = 0x04
	ErrorCodeMaxTries       ErrorCode = 0x05
	ErrorCodeUnavailable    ErrorCode = 0x06
	ErrorCodeBusy           ErrorCode = 0x07
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeUnknown:
		return "Unknown"
	case ErrorCodeAuthentication:
		return "Authentication"
	case ErrorCodeBackoff:
		return "Backoff"
	case ErrorCodeMaxPeers:
		return "MaxPeers"
	case ErrorCodeMaxTries:
		return "MaxTries"
	case ErrorCodeUnavailable:
		return "Unavailable"
	case ErrorCodeBusy:
		return "Busy"
	default:
		return "Unknown"
	}
}

// Permission values carried in TypePermissions items.
const (
	PermissionUser  byte = 0x00
	PermissionAdmin byte = 0x01
)
