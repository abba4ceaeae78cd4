package objectstore

import "testing"

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:        "localhost:9000",
		AccessKey:       "a",
		SecretKey:       "b",
		Region:          "us-east-1",
		BucketArtifacts: "artifacts",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}

	invalid = valid
	invalid.BucketArtifacts = " "
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for blank bucket")
	}
}

func TestConfigFromEnv_UseSSL(t *testing.T) {
	t.Setenv("ANIMUS_MINIO_USE_SSL", "true")
	t.Setenv("ANIMUS_MINIO_BUCKET_ARTIFACTS", "ml-artifacts")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if !cfg.UseSSL || cfg.BucketArtifacts != "ml-artifacts" {
		t.Fatalf("ConfigFromEnv()=%+v", cfg)
	}

	t.Setenv("ANIMUS_MINIO_USE_SSL", "maybe")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("ConfigFromEnv() expected error for invalid bool")
	}
}
