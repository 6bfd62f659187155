package engine

import (
	"github.com/k0kubun/pp/v3"

	"github.com/AvaProtocol/sponsored-bundle/core/bundle"
	"github.com/AvaProtocol/sponsored-bundle/pkg/eip1559"
)

func (e *Engine) role(i int) string {
	if i == 0 {
		return "sponsor"
	}
	return "executor"
}

func (e *Engine) printTransactions(signed *bundle.SignedBundle) {
	senders := signed.Senders()
	for i, tx := range signed.Txs {
		to := "<create>"
		if tx.To() != nil {
			to = tx.To().Hex()
		}
		e.logger.Info("bundle transaction",
			"index", i,
			"signer", e.role(i),
			"hash", tx.Hash().Hex(),
			"from", senders[i].Hex(),
			"to", to,
			"nonce", tx.Nonce(),
			"gas_price_gwei", eip1559.ToGwei(tx.GasPrice()),
			"gas_limit", tx.Gas(),
			"value_eth", eip1559.ToEther(tx.Value()),
			"data_bytes", len(tx.Data()))
	}
}

func (e *Engine) printSummary(description string, signed *bundle.SignedBundle, sim *bundle.Simulation) {
	b := signed.Bundle

	if description != "" {
		e.logger.Info(description)
	}
	e.logger.Info("bundle summary",
		"bundle_hash", signed.Hash.Hex(),
		"executor", e.executor.Address.Hex(),
		"sponsor", e.sponsor.Address.Hex(),
		"simulated_gas_price_gwei", eip1559.ToGwei(sim.EffectiveGasPrice),
		"gas_price_gwei", eip1559.ToGwei(b.Gas.GasPrice),
		"gas_used_by_executor", b.TotalGas(),
		"gas_value_used_by_executor_wei", b.FundingValue.String(),
		"total_value_sponsored_wei", b.SponsoredValue().String())
}

type dumpEntry struct {
	Signer   string
	Hash     string
	From     string
	To       string
	Nonce    uint64
	GasLimit uint64
	GasPrice string
	Value    string
}

type dumpView struct {
	BundleHash   string
	GasPrice     string
	Estimates    []uint64
	FundingValue string
	Entries      []dumpEntry
}

func (e *Engine) dumpBundle(signed *bundle.SignedBundle) {
	if e.dump == nil {
		return
	}

	view := dumpView{
		BundleHash:   signed.Hash.Hex(),
		GasPrice:     signed.Bundle.Gas.String(),
		Estimates:    signed.Bundle.Estimates,
		FundingValue: signed.Bundle.FundingValue.String(),
	}
	senders := signed.Senders()
	for i, tx := range signed.Txs {
		entry := dumpEntry{
			Signer:   e.role(i),
			Hash:     tx.Hash().Hex(),
			From:     senders[i].Hex(),
			Nonce:    tx.Nonce(),
			GasLimit: tx.Gas(),
			GasPrice: tx.GasPrice().String(),
			Value:    tx.Value().String(),
		}
		if tx.To() != nil {
			entry.To = tx.To().Hex()
		}
		view.Entries = append(view.Entries, entry)
	}

	printer := pp.New()
	printer.SetOutput(e.dump)
	printer.SetColoringEnabled(false)
	printer.Println(view)
}
