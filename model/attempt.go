package model

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
)

var validate = validator.New()

// Attempt is one broadcast of a bundle, journaled for the lifetime of a run.
type Attempt struct {
	// sortable id, so attempts list in the order they were made
	ID string `json:"id" validate:"required"`

	BundleHash string `json:"bundle_hash" validate:"required,startswith=0x"`

	// the head that triggered the attempt, and the block the bundle was sent for
	Block       uint64 `json:"block"`
	TargetBlock uint64 `json:"target_block" validate:"gtfield=Block"`

	// effective gas price reported by the simulation, in wei
	SimulatedGasPrice string `json:"simulated_gas_price,omitempty"`
	// hash the relay acknowledged the submission with
	RelayBundleHash string `json:"relay_bundle_hash,omitempty"`

	Resolution string `json:"resolution,omitempty"`
	Error      string `json:"error,omitempty"`

	CreatedAt int64 `json:"created_at"`
}

// Generate a sorted uuid
func GenerateAttemptID() string {
	return ulid.Make().String()
}

func NewAttempt(bundleHash string, block, targetBlock uint64) *Attempt {
	return &Attempt{
		ID:          GenerateAttemptID(),
		BundleHash:  bundleHash,
		Block:       block,
		TargetBlock: targetBlock,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

func (a *Attempt) Validate() error {
	return validate.Struct(a)
}

func (a *Attempt) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

func (a *Attempt) FromStorageData(body []byte) error {
	return json.Unmarshal(body, a)
}
