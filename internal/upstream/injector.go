package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// InjectionOutcome is a fully granted and customized item.
type InjectionOutcome struct {
	ItemInstanceID string
	ItemID         string
	Layout         string // grant response layout the instance id came from
}

type grantParams struct {
	ItemIDs []string `json:"itemIds"`
}

type customizeParams struct {
	ItemInstanceID string `json:"itemInstanceId"`
	ItemID         string `json:"itemId"`
}

// Inject grants itemID to the account owning credential and attaches the
// custom data to the new instance. Failures are *InjectionError values; a
// failure in the customize phase means the item was granted anyway.
//
// Once the grant succeeds ctx cancellation is ignored and only the per-call
// timeout applies. Nothing is retried.
func (c *Client) Inject(ctx context.Context, itemID, credential string) (*InjectionOutcome, error) {
	log := c.logger.WithField("item_id", itemID)

	granted, layout, err := c.grant(ctx, itemID, credential)
	if err != nil {
		log.WithFields(logrus.Fields{"phase": PhaseGrant, "error": err.Error()}).Warn("grant failed")
		return nil, err
	}
	log = log.WithFields(logrus.Fields{"item_instance_id": granted.InstanceID, "layout": layout})
	log.Info("item granted")

	detached := context.WithoutCancel(ctx)
	if c.stabilizationDelay > 0 {
		time.Sleep(c.stabilizationDelay)
	}

	targetID := granted.ItemID
	if targetID == "" {
		targetID = itemID
	}
	if err := c.customize(detached, credential, granted.InstanceID, targetID); err != nil {
		log.WithFields(logrus.Fields{"phase": PhaseCustomize, "error": err.Error()}).Error("item granted but not customized")
		return nil, err
	}
	log.Info("item customized")

	return &InjectionOutcome{
		ItemInstanceID: granted.InstanceID,
		ItemID:         targetID,
		Layout:         layout,
	}, nil
}

func (c *Client) grant(ctx context.Context, itemID, credential string) (grantedItem, string, error) {
	result, err := c.execute(ctx, credential, FunctionGrantItems, grantParams{ItemIDs: []string{itemID}})
	if err != nil {
		return grantedItem{}, "", &InjectionError{Phase: PhaseGrant, Kind: err}
	}
	if !result.ok() {
		return grantedItem{}, "", &InjectionError{Phase: PhaseGrant, Kind: ErrGrantFailed, Status: result.status}
	}
	resp, err := result.decode()
	if err != nil {
		return grantedItem{}, "", &InjectionError{Phase: PhaseGrant, Kind: ErrGrantFailed, Status: result.status, Err: err}
	}
	if resp.Data.Error != nil {
		return grantedItem{}, "", &InjectionError{
			Phase:  PhaseGrant,
			Kind:   ErrGrantFailed,
			Status: result.status,
			Err:    fmt.Errorf("cloud script error %q", resp.Data.Error.Error),
		}
	}

	granted, layout, ok := extractGrantedItem(resp.Data.FunctionResult)
	if !ok {
		return grantedItem{}, "", &InjectionError{Phase: PhaseExtract, Kind: ErrMissingInstanceID}
	}
	return granted, layout, nil
}

func (c *Client) customize(ctx context.Context, credential, instanceID, itemID string) error {
	result, err := c.execute(ctx, credential, FunctionUploadCustom, customizeParams{
		ItemInstanceID: instanceID,
		ItemID:         itemID,
	})
	if err != nil {
		return &InjectionError{Phase: PhaseCustomize, Kind: ErrCustomizeFailed, ItemInstanceID: instanceID, Err: err}
	}
	if !result.ok() {
		return &InjectionError{Phase: PhaseCustomize, Kind: ErrCustomizeFailed, ItemInstanceID: instanceID, Status: result.status}
	}
	// Script errors arrive with status 200 because of X-ReportErrorAsSuccess.
	resp, err := result.decode()
	if err != nil {
		return &InjectionError{Phase: PhaseCustomize, Kind: ErrCustomizeFailed, ItemInstanceID: instanceID, Err: err}
	}
	if resp.Data.Error != nil {
		return &InjectionError{
			Phase:          PhaseCustomize,
			Kind:           ErrCustomizeFailed,
			ItemInstanceID: instanceID,
			Err:            fmt.Errorf("cloud script error %q", resp.Data.Error.Error),
		}
	}
	return nil
}
