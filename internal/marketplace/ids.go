package marketplace

import (
	"fmt"

	"github.com/google/uuid"

	"backtestsim/internal/model"
)

// idSequence derives order and trade ids deterministically from
// (exchangeId, base, quote, n) via uuid.NewSHA1 rather than uuid.New(),
// so two replays of the same inputs produce byte-identical ids
// (testable property 4, §12).
type idSequence struct {
	namespace uuid.UUID
	nextOrder uint64
	nextTrade uint64
}

func newIDSequence(market model.Market) *idSequence {
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%s|%s", market.ExchangeID, market.Base, market.Quote)))
	return &idSequence{namespace: ns}
}

func (s *idSequence) nextOrderID() string {
	s.nextOrder++
	return uuid.NewSHA1(s.namespace, []byte(fmt.Sprintf("order:%d", s.nextOrder))).String()
}

func (s *idSequence) nextTradeID() string {
	s.nextTrade++
	return uuid.NewSHA1(s.namespace, []byte(fmt.Sprintf("trade:%d", s.nextTrade))).String()
}
