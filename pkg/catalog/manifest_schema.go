package catalog

// ManifestSchema is the JSON schema every plugin.json must satisfy
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "version", "description", "author", "logic"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "version": {
      "type": "string",
      "minLength": 1
    },
    "description": {
      "type": "string",
      "minLength": 1
    },
    "author": {
      "type": "string",
      "minLength": 1
    },
    "logic": {
      "type": "string",
      "minLength": 1
    },
    "ui": {
      "type": "string"
    },
    "permissions": {
      "type": "array",
      "items": {
        "type": "string",
        "minLength": 1
      }
    },
    "features": {
      "type": "array",
      "items": {
        "type": "string"
      }
    },
    "storage_schema": {
      "type": "object"
    },
    "api_endpoints": {
      "type": "array",
      "items": {
        "type": "string"
      }
    },
    "metadata": {
      "type": "object"
    }
  }
}`
