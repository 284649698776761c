package hsm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// AWSKMSModule implements Module using an AWS KMS customer master key. The
// key is non-exportable; wrap/unwrap happen inside KMS.
type AWSKMSModule struct {
	keyID  string
	region string
	client *kms.Client
}

// NewAWSKMSModule creates an AWS KMS module.
func NewAWSKMSModule(keyID, region string) (*AWSKMSModule, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	// Uses default credential chain: env vars, shared config, IAM role.
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSKMSModule{
		keyID:  keyID,
		region: region,
		client: kms.NewFromConfig(cfg),
	}, nil
}

// WrapKey encrypts a data key under the KMS key.
func (m *AWSKMSModule) WrapKey(ctx context.Context, dataKey []byte) ([]byte, error) {
	output, err := m.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(m.keyID),
		Plaintext: dataKey,
	})
	if err != nil {
		return nil, translateErr(err, "kms encrypt")
	}
	return output.CiphertextBlob, nil
}

// UnwrapKey decrypts a wrapped data key inside KMS.
func (m *AWSKMSModule) UnwrapKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	output, err := m.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(m.keyID),
		CiphertextBlob: wrapped,
	})
	if err != nil {
		return nil, translateErr(err, "kms decrypt")
	}
	return output.Plaintext, nil
}

// Provider returns the backend name.
func (m *AWSKMSModule) Provider() string { return string(ProviderAWSKMS) }

// HardwareBacked reports true; KMS keys are non-exportable.
func (m *AWSKMSModule) HardwareBacked() bool { return true }

// RequiresUserAuth reports false; KMS gates on IAM, not a user gesture.
func (m *AWSKMSModule) RequiresUserAuth() bool { return false }

var _ Module = (*AWSKMSModule)(nil)
