package models

// AddressBalance is the chain oracle's view of an address, in satoshi.
type AddressBalance struct {
	Address     string `json:"address"`
	Confirmed   int64  `json:"confirmed"`
	Unconfirmed int64  `json:"unconfirmed"`
}

func (b AddressBalance) Total() int64 {
	return b.Confirmed + b.Unconfirmed
}

type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Satoshis      int64  `json:"satoshis"`
	Height        int64  `json:"height"`
	Confirmations int64  `json:"confirmations"`
}
