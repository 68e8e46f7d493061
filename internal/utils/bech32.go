package utils

import (
	"fmt"
	"strings"
)

// Bech32 decoding per BIP-173, enough to validate Cardano Shelley addresses
// and extract their credential bytes.

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var bech32Generator = []uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

func bech32Polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= bech32Generator[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	expanded := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		expanded = append(expanded, byte(c)>>5)
	}
	expanded = append(expanded, 0)
	for _, c := range hrp {
		expanded = append(expanded, byte(c)&31)
	}
	return expanded
}

// DecodeBech32 decodes a bech32 string and returns the human-readable part
// and the 8-bit payload. Cardano addresses exceed the 90-character BIP-173
// limit, so no length cap is enforced.
func DecodeBech32(encoded string) (string, []byte, error) {
	if strings.ToLower(encoded) != encoded && strings.ToUpper(encoded) != encoded {
		return "", nil, fmt.Errorf("mixed case bech32 string")
	}
	encoded = strings.ToLower(encoded)
	separator := strings.LastIndex(encoded, "1")
	if separator < 1 || separator+7 > len(encoded) {
		return "", nil, fmt.Errorf("invalid bech32 separator position")
	}
	hrp := encoded[:separator]
	data := make([]byte, 0, len(encoded)-separator-1)
	for _, c := range encoded[separator+1:] {
		index := strings.IndexRune(bech32Charset, c)
		if index < 0 {
			return "", nil, fmt.Errorf("invalid bech32 character %q", c)
		}
		data = append(data, byte(index))
	}
	if bech32Polymod(append(bech32HRPExpand(hrp), data...)) != 1 {
		return "", nil, fmt.Errorf("bech32 checksum mismatch")
	}

	payload, err := convertBits(data[:len(data)-6], 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	return hrp, payload, nil
}

func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	var acc uint32
	var bits uint
	maxValue := uint32(1)<<toBits - 1
	result := make([]byte, 0, len(data)*int(fromBits)/int(toBits)+1)
	for _, value := range data {
		if uint32(value)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data range in bech32 payload")
		}
		acc = acc<<fromBits | uint32(value)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			result = append(result, byte(acc>>bits&maxValue))
		}
	}
	if pad {
		if bits > 0 {
			result = append(result, byte(acc<<(toBits-bits)&maxValue))
		}
	} else if bits >= fromBits || acc<<(toBits-bits)&maxValue != 0 {
		return nil, fmt.Errorf("invalid padding in bech32 payload")
	}
	return result, nil
}
