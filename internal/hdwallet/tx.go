package hdwallet

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/gcash/bchd/bchec"
	"github.com/gcash/bchd/chaincfg/chainhash"
	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchd/wire"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/models"
)

// Rough P2PKH sizes used for fee estimation.
const (
	txOverheadSize = 10
	p2pkhInputSize = 148
	p2pkhOutSize   = 34
)

// FundingRequest describes a payout from a single P2PKH key.
type FundingRequest struct {
	From       *btcec.PrivateKey
	UTXOs      []models.UTXO
	ToAddress  string
	AmountSats int64
	FeePerKB   int64
	DustLimit  int64
}

type FundingTx struct {
	TxID        string
	RawHex      string
	FeeSats     int64
	ChangeSats  int64
	InputsTotal int64
}

// BuildFundingTx selects inputs largest-first, pays AmountSats to ToAddress, returns
// change to the sender when it clears the dust limit, and signs every input with the
// BCH fork-id sighash.
func BuildFundingTx(req FundingRequest) (*FundingTx, error) {
	if req.AmountSats <= 0 {
		return nil, apperrors.New(apperrors.ErrBadRequest, "funding amount must be positive")
	}
	if req.AmountSats < req.DustLimit {
		return nil, apperrors.New(apperrors.ErrBadRequest, "funding amount %d is below dust limit %d", req.AmountSats, req.DustLimit)
	}

	toAddr, err := ParseAddress(req.ToAddress)
	if err != nil {
		return nil, err
	}
	toScript, err := txscript.PayToAddrScript(toAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to build output script: %w", err)
	}

	fromAddress, err := AddressFromPrivateKey(req.From)
	if err != nil {
		return nil, err
	}
	fromAddr, err := ParseAddress(fromAddress)
	if err != nil {
		return nil, err
	}
	fromScript, err := txscript.PayToAddrScript(fromAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to build change script: %w", err)
	}

	utxos := make([]models.UTXO, len(req.UTXOs))
	copy(utxos, req.UTXOs)
	sort.Slice(utxos, func(i, j int) bool { return utxos[i].Satoshis > utxos[j].Satoshis })

	var (
		selected []models.UTXO
		total    int64
		fee      int64
	)
	for _, u := range utxos {
		selected = append(selected, u)
		total += u.Satoshis
		fee = estimateFee(len(selected), 2, req.FeePerKB)
		if total >= req.AmountSats+fee {
			break
		}
	}
	if total < req.AmountSats+fee {
		return nil, apperrors.New(apperrors.ErrInsufficientFunds, "operational address has %d sats, need %d", total, req.AmountSats+fee)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range selected {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrBadRequest, "invalid utxo txid %q: %v", u.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil))
	}
	tx.AddTxOut(wire.NewTxOut(req.AmountSats, toScript))

	change := total - req.AmountSats - fee
	if change >= req.DustLimit {
		tx.AddTxOut(wire.NewTxOut(change, fromScript))
	} else {
		// sub-dust change goes to the miner
		fee += change
		change = 0
	}

	signer, _ := bchec.PrivKeyFromBytes(bchec.S256(), req.From.Serialize())
	for i, u := range selected {
		sigScript, err := txscript.SignatureScript(tx, i, u.Satoshis, fromScript,
			txscript.SigHashAll|txscript.SigHashForkID, signer, true)
		if err != nil {
			return nil, fmt.Errorf("failed to sign input %d: %w", i, err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	return &FundingTx{
		TxID:        tx.TxHash().String(),
		RawHex:      hex.EncodeToString(buf.Bytes()),
		FeeSats:     fee,
		ChangeSats:  change,
		InputsTotal: total,
	}, nil
}

func estimateFee(inputs, outputs int, feePerKB int64) int64 {
	size := int64(txOverheadSize + inputs*p2pkhInputSize + outputs*p2pkhOutSize)
	fee := size * feePerKB / 1000
	if fee < size {
		// relay floor of 1 sat/byte
		fee = size
	}
	return fee
}
