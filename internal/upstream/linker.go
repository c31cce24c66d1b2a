package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

type userDataParams struct {
	Keys []string `json:"Keys"`
}

// ValidateCredential checks the credential against the backend with a read-only call and returns the
// external account id the credential belongs to. Every failure is reported as
// ErrInvalidOrUnreachable; the concrete cause is only logged.
func (c *Client) ValidateCredential(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ErrEmptyCredential
	}

	externalID, err := c.fetchUserID(ctx, credential)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"function": FunctionGetUserData,
			"cause":    err.Error(),
		}).Info("credential rejected")
		return "", ErrInvalidOrUnreachable
	}
	return externalID, nil
}

func (c *Client) fetchUserID(ctx context.Context, credential string) (string, error) {
	result, err := c.execute(ctx, credential, FunctionGetUserData, userDataParams{Keys: []string{"profile"}})
	if err != nil {
		return "", err
	}
	if !result.ok() {
		return "", fmt.Errorf("unexpected HTTP status %d", result.status)
	}
	resp, err := result.decode()
	if err != nil {
		return "", err
	}
	if resp.Data.PlayFabID == "" {
		return "", errors.New("response carried no account id")
	}
	return resp.Data.PlayFabID, nil
}
