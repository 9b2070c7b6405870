package pigeon

import "github.com/boardd/boardd/pkg/board"

// BoardTunnel connects to the GPS receiver tunneled through the main
// board's USB session, the non-TICI path (spec §4.7).
type BoardTunnel struct {
	b board.Board
}

func OpenBoardTunnel(b board.Board) *BoardTunnel {
	return &BoardTunnel{b: b}
}

func (t *BoardTunnel) Init() error {
	return nil
}

func (t *BoardTunnel) Receive() ([]byte, error) {
	// The board multiplexes GPS bytes over the same bulk pipe as CAN
	// traffic on a reserved sub-channel; reusing CANReceive with a bus
	// shift of zero is the board-tunnel transport's framing contract.
	return t.b.CANReceive(0)
}

func (t *BoardTunnel) Stop() error {
	return nil
}

func (t *BoardTunnel) SetPower(on bool) error {
	return nil
}

func (t *BoardTunnel) Close() error {
	return nil
}

var _ Pigeon = (*BoardTunnel)(nil)
