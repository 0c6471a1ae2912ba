package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
)

// SNSSender delivers SMS reminders via AWS SNS.
type SNSSender struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

// NewSNSSender creates a new SNS sender for SMS reminders
func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// Enviar sends one SMS via SNS and returns the SNS message id.
func (s *SNSSender) Enviar(ctx context.Context, envio *Envio) (string, error) {
	if envio.Canal != db.CanalSMS {
		return "", Permanente("", fmt.Errorf("SNS sender only supports SMS, got: %s", envio.Canal))
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(envio.Destinatario),
		Message:     aws.String(envio.Corpo),
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return "", classificarErroSNS(err)
	}

	s.logger.Info("SMS sent via SNS",
		zap.String("cobranca_id", envio.CobrancaID.String()),
		zap.String("destinatario", envio.Destinatario),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return aws.ToString(result.MessageId), nil
}

func classificarErroSNS(err error) error {
	var invalid *types.InvalidParameterException
	if errors.As(err, &invalid) {
		// Malformed phone number or message; retrying resends the same input.
		return Permanente("InvalidParameter", err)
	}

	var disabled *types.EndpointDisabledException
	if errors.As(err, &disabled) {
		return Permanente("EndpointDisabled", err)
	}

	var throttled *types.ThrottledException
	if errors.As(err, &throttled) {
		return Transitorio(fmt.Errorf("sns throttled: %w", err))
	}

	return Transitorio(fmt.Errorf("sns publish failed: %w", err))
}

// SupportsChannel checks if this sender supports the SMS channel
func (s *SNSSender) SupportsChannel(canal string) bool {
	return canal == db.CanalSMS
}
