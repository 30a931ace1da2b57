package cloudsync

import "testing"

func TestTypeFromARN(t *testing.T) {
	cases := []struct {
		arn  string
		want string
	}{
		{"arn:aws:ec2:us-east-1:123456789012:instance/i-0abc", "ec2:instance"},
		{"arn:aws:s3:::my-bucket", "s3"},
		{"arn:aws:rds:eu-west-1:123456789012:db:prod-db", "rds:db"},
		{"not-an-arn", "unknown"},
	}
	for _, tc := range cases {
		if got := typeFromARN(tc.arn); got != tc.want {
			t.Fatalf("typeFromARN(%q) = %q, want %q", tc.arn, got, tc.want)
		}
	}
}

func TestNameFromARN(t *testing.T) {
	if got := nameFromARN("arn:aws:ec2:us-east-1:1:instance/i-0abc"); got != "i-0abc" {
		t.Fatalf("nameFromARN = %q, want i-0abc", got)
	}
}
