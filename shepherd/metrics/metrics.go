package metrics

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
)

// Dimension qualifies a sample, e.g. Environment=prod.
type Dimension struct {
	Name  string
	Value string
}

// Sampler publishes point-in-time measurements under a single CloudWatch
// namespace and unit.
type Sampler struct {
	Namespace string
	Unit      string
	Service   *cloudwatch.CloudWatch
}

func NewSampler(namespace, unit string) (*Sampler, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String("us-east-1"),
	})
	if err != nil {
		return nil, err
	}

	return &Sampler{
		Namespace: namespace,
		Unit:      unit,
		Service:   cloudwatch.New(sess),
	}, nil
}

func (s *Sampler) PutSample(name string, value float64, dimensions []Dimension) error {
	datum := &cloudwatch.MetricDatum{
		MetricName: aws.String(name),
		Unit:       aws.String(s.Unit),
		Value:      aws.Float64(value),
	}
	for _, dim := range dimensions {
		datum.Dimensions = append(datum.Dimensions, &cloudwatch.Dimension{
			Name:  aws.String(dim.Name),
			Value: aws.String(dim.Value),
		})
	}

	_, err := s.Service.PutMetricData(&cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.Namespace),
		MetricData: []*cloudwatch.MetricDatum{datum},
	})
	return err
}
