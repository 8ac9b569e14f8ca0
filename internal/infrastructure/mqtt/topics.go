package mqtt

import (
	"fmt"

	"github.com/nerrad567/regsync/internal/register"
)

// TopicPrefix is the root of every regsync topic.
const TopicPrefix = "regsync"

// Topics builds the topics of one regsync instance.
//
//	topics := mqtt.NewTopics("cam-front")
//	topics.Register(register.BankDSP, 0x44)
//	// Returns: "regsync/cam-front/register/dsp/0x44"
type Topics struct {
	site string
}

// NewTopics returns the topic builder for site.
func NewTopics(site string) Topics {
	return Topics{site: site}
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", TopicPrefix, t.site)
}

// Status is the retained online/offline topic, also used for the LWT.
func (t Topics) Status() string {
	return t.base() + "/status"
}

// Register carries the last confirmed value of one Primary register.
func (t Topics) Register(bank register.Bank, addr register.Address) string {
	return fmt.Sprintf("%s/register/%s/%s", t.base(), bank, addr.Hex())
}

// SyncOperation carries every mirror operation outcome.
func (t Topics) SyncOperation() string {
	return t.base() + "/sync/operation"
}

// SyncConnectivity carries the Secondary connectivity state.
func (t Topics) SyncConnectivity() string {
	return t.base() + "/sync/connectivity"
}

// PresetApplied carries preset application summaries.
func (t Topics) PresetApplied() string {
	return t.base() + "/preset/applied"
}

// AllRegisters matches every register topic of every instance.
func (Topics) AllRegisters() string {
	return TopicPrefix + "/+/register/+/+"
}
