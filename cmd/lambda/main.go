package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/VadimShubkin/ii/infrastructure/config"
	"github.com/VadimShubkin/ii/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"
)

var (
	// chiLambda wraps the chi router for API Gateway HTTP APIs
	chiLambda *chiadapter.ChiLambdaV2

	container *di.Container

	coldStart     = true
	coldStartTime time.Time
)

// setup runs once per cold start, before the first invocation
func setup() {
	coldStartTime = time.Now()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.IsLambda = true

	// Connections live as long as the execution environment, so the
	// container cleanup is never called.
	container, _, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	chiLambda = chiadapter.NewV2(container.Router.Mux())

	container.Logger.Info("Lambda cold start completed",
		zap.Duration("duration", time.Since(coldStartTime)),
		zap.String("store", cfg.StoreDriver),
	)
}

// Handler is the Lambda function handler
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	forwardAuthorizerContext(&req)

	resp, err := chiLambda.ProxyWithContextV2(ctx, req)

	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		coldStart = false
	} else {
		resp.Headers["X-Cold-Start"] = "false"
	}
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Request-ID"] = req.RequestContext.RequestID
	}

	if resp.StatusCode >= 500 {
		container.Logger.Error("Lambda error response",
			zap.String("method", req.RequestContext.HTTP.Method),
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.String("request_id", req.RequestContext.RequestID),
			zap.Int("status_code", resp.StatusCode),
		)
	}
	return resp, err
}

// forwardAuthorizerContext turns the claims validated by the API Gateway
// JWT authorizer into the identity headers the router trusts in Lambda
// mode. Client supplied copies of those headers are dropped first.
func forwardAuthorizerContext(req *events.APIGatewayV2HTTPRequest) {
	for _, h := range []string{"x-api-gateway-authorized", "x-user-id", "x-user-roles"} {
		delete(req.Headers, h)
	}

	authorizer := req.RequestContext.Authorizer
	if authorizer == nil || authorizer.JWT == nil {
		return
	}
	claims := authorizer.JWT.Claims
	userID := claims["sub"]
	if userID == "" {
		return
	}

	delete(req.Headers, "authorization")
	req.Headers["x-api-gateway-authorized"] = "true"
	req.Headers["x-user-id"] = userID
	if roles := normalizeRoles(claims["roles"]); roles != "" {
		req.Headers["x-user-roles"] = roles
	}
}

// normalizeRoles accepts "a,b" and the "[a b]" form API Gateway uses to
// flatten array claims
func normalizeRoles(raw string) string {
	raw = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(raw), "["), "]")
	return strings.Join(strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	}), ",")
}

func main() {
	setup()
	lambda.Start(Handler)
}
