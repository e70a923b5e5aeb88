package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/vocdoni/zkpool/api"
	"github.com/vocdoni/zkpool/ledger"
	"github.com/vocdoni/zkpool/storage"
	"github.com/vocdoni/zkpool/types"
)

// PoolInfo fetches the pool summary.
func (c *HTTPclient) PoolInfo() (*api.PoolInfo, error) {
	info := &api.PoolInfo{}
	if err := c.get(info, nil, api.PoolEndpoint); err != nil {
		return nil, err
	}
	return info, nil
}

// PoolRoot fetches the current accumulator root.
func (c *HTTPclient) PoolRoot() (*types.BigInt, error) {
	root := &api.PoolRoot{}
	if err := c.get(root, nil, api.PoolRootEndpoint); err != nil {
		return nil, err
	}
	return root.Root, nil
}

// SlotProof fetches the inclusion path of a slot.
func (c *HTTPclient) SlotProof(index uint64) (*api.SlotProof, error) {
	proof := &api.SlotProof{}
	if err := c.get(proof, nil, "pool", "proof", strconv.FormatUint(index, 10)); err != nil {
		return nil, err
	}
	return proof, nil
}

// Events fetches up to max settled events starting at sequence number from.
func (c *HTTPclient) Events(from uint64, max int) ([]*ledger.Event, error) {
	events := &api.EventList{}
	params := []string{
		"from", strconv.FormatUint(from, 10),
		"max", strconv.Itoa(max),
	}
	if err := c.get(events, params, api.PoolEventsEndpoint); err != nil {
		return nil, err
	}
	return events.Events, nil
}

// SubmitDeposit queues a deposit and returns its transaction ID.
func (c *HTTPclient) SubmitDeposit(req *api.DepositRequest) (types.HexBytes, error) {
	ref := &api.TransactionRef{}
	if err := c.post(ref, req, api.DepositsEndpoint); err != nil {
		return nil, err
	}
	return ref.TxID, nil
}

// SubmitWithdraw queues a withdrawal and returns its transaction ID.
func (c *HTTPclient) SubmitWithdraw(req *api.WithdrawRequest) (types.HexBytes, error) {
	ref := &api.TransactionRef{}
	if err := c.post(ref, req, api.WithdrawalsEndpoint); err != nil {
		return nil, err
	}
	return ref.TxID, nil
}

// TransactionStatus fetches the status record of a transaction.
func (c *HTTPclient) TransactionStatus(txID types.HexBytes) (*storage.TxStatus, error) {
	status := &storage.TxStatus{}
	if err := c.get(status, nil, "transactions", txID.String()); err != nil {
		return nil, err
	}
	return status, nil
}

// WaitSettled polls a transaction until it leaves the pending state or the
// context expires, and returns its terminal status.
func (c *HTTPclient) WaitSettled(ctx context.Context, txID types.HexBytes, interval time.Duration) (*storage.TxStatus, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := c.TransactionStatus(txID)
		if err != nil {
			return nil, err
		}
		if status.Status != types.TxPending {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *HTTPclient) get(out any, params []string, urlPath ...string) error {
	data, status, err := c.Request(HTTPGET, nil, params, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	return json.Unmarshal(data, out)
}

func (c *HTTPclient) post(out, body any, urlPath ...string) error {
	data, status, err := c.Request(HTTPPOST, body, nil, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	return json.Unmarshal(data, out)
}
