package servers

import (
	"context"
	"fmt"
	"strconv"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Secret keys read by FillFromSecret.
const (
	SecretKeyHostName = "host_name"
	SecretKeyPort     = "port"
	SecretKeyUserName = "user_name"
	SecretKeyPassword = "password"
	SecretKeyUseSSL   = "use_ssl"
)

// FillFromSecret overlays credentials from the Kubernetes Secret named by
// s.Secret. Keys missing from the secret keep the configured value.
func FillFromSecret(ctx context.Context, cs kubernetes.Interface, namespace string, s *Server) error {
	if s.Secret == "" {
		return nil
	}
	sec, err := cs.CoreV1().Secrets(namespace).Get(ctx, s.Secret, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get secret %s/%s: %w", namespace, s.Secret, err)
	}
	get := func(key string) (string, bool) {
		if v, ok := sec.Data[key]; ok {
			return string(v), true
		}
		v, ok := sec.StringData[key]
		return v, ok
	}

	if v, ok := get(SecretKeyHostName); ok {
		s.HostName = v
	}
	if v, ok := get(SecretKeyPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("secret %s: port %q: %w", s.Secret, v, err)
		}
		s.Port = port
	}
	if v, ok := get(SecretKeyUserName); ok {
		s.UserName = v
	}
	if v, ok := get(SecretKeyPassword); ok {
		s.Password = v
	}
	if v, ok := get(SecretKeyUseSSL); ok {
		useSSL, err := ParseUseSSL(v)
		if err != nil {
			return fmt.Errorf("secret %s: %w", s.Secret, err)
		}
		s.UseSSL = useSSL
	}
	return nil
}

// FillAllFromSecrets applies FillFromSecret to every server in list.
func FillAllFromSecrets(ctx context.Context, cs kubernetes.Interface, namespace string, list []Server) error {
	for i := range list {
		if err := FillFromSecret(ctx, cs, namespace, &list[i]); err != nil {
			return err
		}
	}
	return nil
}
