package tokenmeta

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"gasless-swap/pkg/types"
)

// Token account layouts. A base mint is 82 bytes and a base token account
// 165; extended accounts pad the mint to 165, append one account-type
// byte, then TLV entries of (type u16 LE, length u16 LE, value).
const (
	baseMintLen    = 82
	baseAccountLen = 165
	typeByteOffset = 165
	tlvOffset      = 166

	accountTypeMint    = 1
	accountTypeAccount = 2

	extensionTransferFeeConfig = 1
	extensionMemoTransfer      = 8

	// decimals sits after mint authority (36) and supply (8).
	mintDecimalsOffset = 44

	transferFeeConfigLen = 108
)

// mintDecimals reads the decimals byte of a mint account.
func mintDecimals(data []byte) (uint8, error) {
	if len(data) < baseMintLen {
		return 0, fmt.Errorf("mint account data too short: %d bytes", len(data))
	}
	return data[mintDecimalsOffset], nil
}

// parseMint decodes a token-2022 mint: base fields plus the TLV extension
// block, selecting the transfer-fee schedule active at currentEpoch.
func parseMint(data []byte, currentEpoch uint64) (*Metadata, error) {
	decimals, err := mintDecimals(data)
	if err != nil {
		return nil, err
	}
	meta := &Metadata{Decimals: decimals}
	if len(data) <= tlvOffset {
		return meta, nil
	}
	if data[typeByteOffset] != accountTypeMint {
		return nil, fmt.Errorf("extended account is not a mint (type %d)", data[typeByteOffset])
	}
	body, err := findExtension(data, extensionTransferFeeConfig)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return meta, nil
	}
	fee, err := parseTransferFeeConfig(body, currentEpoch)
	if err != nil {
		return nil, err
	}
	meta.TransferFee = fee
	return meta, nil
}

// accountRequiresMemo decodes a token-2022 account and reports the
// memo-transfer extension's incoming flag.
func accountRequiresMemo(data []byte) (bool, error) {
	if len(data) <= tlvOffset {
		return false, nil
	}
	if len(data) < baseAccountLen || data[typeByteOffset] != accountTypeAccount {
		return false, nil
	}
	body, err := findExtension(data, extensionMemoTransfer)
	if err != nil {
		return false, err
	}
	if body == nil {
		return false, nil
	}
	if len(body) < 1 {
		return false, fmt.Errorf("memo transfer extension truncated")
	}
	return body[0] != 0, nil
}

// findExtension walks the TLV block for the given extension type. A nil
// result means the extension is absent.
func findExtension(data []byte, extType uint16) ([]byte, error) {
	off := tlvOffset
	for off+4 <= len(data) {
		t := binary.LittleEndian.Uint16(data[off : off+2])
		l := int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
		if t == 0 {
			// padding; no further entries
			return nil, nil
		}
		if off+4+l > len(data) {
			return nil, fmt.Errorf("extension %d overruns account data", t)
		}
		if t == extType {
			return data[off+4 : off+4+l], nil
		}
		off += 4 + l
	}
	return nil, nil
}

// parseTransferFeeConfig decodes the transfer-fee extension body:
// two 32-byte authorities, the withheld amount, then the older and newer
// (epoch, maximum fee, basis points) schedules.
func parseTransferFeeConfig(body []byte, currentEpoch uint64) (*types.TransferFeeConfig, error) {
	if len(body) < transferFeeConfigLen {
		return nil, fmt.Errorf("transfer fee config truncated: %d bytes", len(body))
	}
	const schedulesOffset = 32 + 32 + 8
	older := parseFeeSchedule(body[schedulesOffset : schedulesOffset+18])
	newer := parseFeeSchedule(body[schedulesOffset+18 : schedulesOffset+36])

	active := older
	if currentEpoch >= newer.epoch {
		active = newer
	}
	if active.basisPoints == 0 {
		return nil, nil
	}
	return &types.TransferFeeConfig{
		BasisPoints: active.basisPoints,
		MaximumFee:  new(big.Int).SetUint64(active.maximumFee),
	}, nil
}

type feeSchedule struct {
	epoch       uint64
	maximumFee  uint64
	basisPoints uint16
}

func parseFeeSchedule(b []byte) feeSchedule {
	return feeSchedule{
		epoch:       binary.LittleEndian.Uint64(b[0:8]),
		maximumFee:  binary.LittleEndian.Uint64(b[8:16]),
		basisPoints: binary.LittleEndian.Uint16(b[16:18]),
	}
}
