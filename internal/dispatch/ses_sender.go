package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/cobrefacil/lembra/internal/db"
)

// SESSender delivers e-mail reminders via AWS SES.
type SESSender struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
}

func NewSESSender(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &SESSender{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

// Enviar sends one e-mail via SES and returns the SES message id.
func (s *SESSender) Enviar(ctx context.Context, envio *Envio) (string, error) {
	if envio.Canal != db.CanalEmail {
		return "", Permanente("", fmt.Errorf("SES sender only supports email, got: %s", envio.Canal))
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{envio.Destinatario},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(envio.Assunto),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(envio.Corpo),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", classificarErroSES(err)
	}

	s.logger.Info("email sent via SES",
		zap.String("cobranca_id", envio.CobrancaID.String()),
		zap.String("destinatario", envio.Destinatario),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return aws.ToString(result.MessageId), nil
}

// classificarErroSES maps SES failures onto the retry taxonomy. An explicit
// rejection of the message or sender identity never succeeds on retry;
// everything else (throttling, connectivity, service errors) is transient.
func classificarErroSES(err error) error {
	var rejected *types.MessageRejected
	if errors.As(err, &rejected) {
		return Permanente("MessageRejected", err)
	}

	var notVerified *types.MailFromDomainNotVerifiedException
	if errors.As(err, &notVerified) {
		return Permanente("MailFromDomainNotVerified", err)
	}

	var paused *types.AccountSendingPausedException
	if errors.As(err, &paused) {
		return Permanente("AccountSendingPaused", err)
	}

	return Transitorio(fmt.Errorf("ses send failed: %w", err))
}

// SupportsChannel checks if this sender supports the email channel
func (s *SESSender) SupportsChannel(canal string) bool {
	return canal == db.CanalEmail
}
