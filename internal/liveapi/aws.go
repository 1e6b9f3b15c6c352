package liveapi

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/sensit/sensit/internal/types"
)

// awsVerifier confirms an access key / secret key pair through STS
// GetCallerIdentity, which requires no permissions and touches nothing.
type awsVerifier struct {
	timeout time.Duration
	// callerIdentity is swappable so tests can avoid the real endpoint.
	callerIdentity func(ctx context.Context, accessKey, secretKey string) (arn, account string, err error)
}

func newAWS(timeout time.Duration) *awsVerifier {
	v := &awsVerifier{timeout: timeout}
	v.callerIdentity = v.stsCallerIdentity
	return v
}

func (a *awsVerifier) Family() string { return "aws" }

func (a *awsVerifier) Verify(ctx context.Context, secret types.Secret, pairs PairIndex) Outcome {
	access, secretKey := secret.Value, ""
	switch secret.Type {
	case "aws_access_key":
		sk, ok := pairs.First("aws_secret_key")
		if !ok {
			return Indeterminate("no secret key candidate found in the same scan")
		}
		secretKey = sk
	case "aws_secret_key":
		secretKey = secret.Value
		ak, ok := pairs.First("aws_access_key")
		if !ok {
			return Indeterminate("no access key candidate found in the same scan")
		}
		access = ak
	default:
		return Indeterminate("unsupported aws signature " + secret.Type)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	arn, account, err := a.callerIdentity(ctx, access, secretKey)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "InvalidClientTokenId", "SignatureDoesNotMatch", "ExpiredToken":
				return Outcome{
					Validity: types.ValidityRevoked,
					Details:  map[string]string{"error": apiErr.ErrorCode()},
				}
			}
		}
		return Indeterminate(err.Error())
	}
	return Outcome{
		Validity: types.ValidityActive,
		Details:  map[string]string{"arn": arn, "account": account},
	}
}

func (a *awsVerifier) stsCallerIdentity(ctx context.Context, accessKey, secretKey string) (string, string, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return "", "", err
	}
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", "", err
	}
	return aws.ToString(out.Arn), aws.ToString(out.Account), nil
}
