// Package preflight checks IAM permissions before destructive commands run.
package preflight

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	awsclient "github.com/gurre/aws-manage/aws"
)

// Denial is one action the principal may not perform.
type Denial struct {
	Action   string
	Resource string
	Decision types.PolicyEvaluationDecisionType
}

// DeniedError lists every denied action of a check.
type DeniedError struct {
	Principal string
	Denials   []Denial
}

func (e *DeniedError) Error() string {
	parts := make([]string, 0, len(e.Denials))
	for _, d := range e.Denials {
		parts = append(parts, fmt.Sprintf("%s on %s (%s)", d.Action, d.Resource, d.Decision))
	}
	return fmt.Sprintf("%s is not permitted: %s", e.Principal, strings.Join(parts, ", "))
}

// Checker simulates the caller's policies.
type Checker struct {
	iam awsclient.IAMClient
	sts awsclient.STSClient
}

// New creates a Checker.
func New(iamClient awsclient.IAMClient, stsClient awsclient.STSClient) *Checker {
	return &Checker{iam: iamClient, sts: stsClient}
}

// Check returns nil if principalARN may perform every action on every
// resource. An empty principalARN means the caller of the loaded
// credentials. Resources default to "*".
func (c *Checker) Check(ctx context.Context, principalARN string, actions, resources []string) error {
	if len(actions) == 0 {
		return fmt.Errorf("at least one action is required")
	}
	if principalARN == "" {
		var err error
		if principalARN, err = c.Caller(ctx); err != nil {
			return err
		}
	}
	if len(resources) == 0 {
		resources = []string{"*"}
	}

	input := &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: aws.String(principalARN),
		ActionNames:     actions,
		ResourceArns:    resources,
	}

	var denials []Denial
	paginator := iam.NewSimulatePrincipalPolicyPaginator(c.iam, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to simulate policy for %s: %w", principalARN, err)
		}
		for _, r := range page.EvaluationResults {
			if r.EvalDecision == types.PolicyEvaluationDecisionTypeAllowed {
				continue
			}
			denials = append(denials, Denial{
				Action:   aws.ToString(r.EvalActionName),
				Resource: aws.ToString(r.EvalResourceName),
				Decision: r.EvalDecision,
			})
		}
	}

	if len(denials) > 0 {
		return &DeniedError{Principal: principalARN, Denials: denials}
	}
	return nil
}

// Caller returns the IAM ARN of the loaded credentials. Assumed role
// sessions resolve to their role.
func (c *Checker) Caller(ctx context.Context) (string, error) {
	out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return RoleARN(aws.ToString(out.Arn)), nil
}

// RoleARN maps an STS assumed role session ARN such as
// arn:aws:sts::123456789012:assumed-role/Admin/session to the role ARN
// arn:aws:iam::123456789012:role/Admin. Other ARNs are returned unchanged.
func RoleARN(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) != 6 || parts[2] != "sts" {
		return arn
	}
	resource := strings.Split(parts[5], "/")
	if len(resource) < 3 || resource[0] != "assumed-role" {
		return arn
	}
	return fmt.Sprintf("%s:%s:iam::%s:role/%s", parts[0], parts[1], parts[4], resource[1])
}
